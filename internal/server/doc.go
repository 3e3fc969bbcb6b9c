// Package server accepts WebSocket connections opened by devices configured
// for outbound WebSocket.
//
// A Shelly device with outbound WebSocket enabled dials a server URL and
// sends JSON-RPC notifications over the connection. The server upgrades the
// request, reads the first frame and uses its src field as the device ID.
// The connection is then handed to whoever claimed that ID:
//
//	srv, err := server.New(&server.Config{Port: 8765})
//	if err != nil {
//	    return err
//	}
//	release := srv.Claim("shellyplus1-a8032ab12345", func(c *server.Connection) {
//	    // c.Initial holds the frame used for identification.
//	})
//	defer release()
//	return srv.Start(ctx)
//
// Connections from devices that nobody has claimed yet are held for
// Config.UnclaimedTimeout and delivered when a claim arrives. A newer
// connection from the same device replaces an older waiting one.
//
// TLS is enabled when both CertPath and KeyPath are set.
package server
