// Package shellies keeps track of devices on the network.
//
// Shellies combines a Registry of live devices with a discovery pipeline.
// Discoverers report device identifiers; for each new identity the pipeline
// resolves per-device options, skips excluded devices and unrecognized
// models, builds an RPC handler and a device, and adds it to the registry.
// Every identity moves through a small lifecycle:
//
//	unknown -> pending -> registered | ignored
//
// Discovery events for identities that are pending, registered or ignored
// are dropped. A failure while building the handler or device is reported as
// an error event and returns the identity to unknown, so a later discovery
// tries again. Ignored identities stay ignored until Reconsider is called.
//
// Observers subscribe to add, remove, error, exclude and unknown events
// through the Observable methods, or to all of them with Watch:
//
//	s, err := shellies.New(shellies.Options{AutoLoadStatus: true})
//	if err != nil {
//	    return err
//	}
//	s.OnAdd(func(d device.Device) {
//	    fmt.Println("added", d.ID(), d.Model())
//	})
//	mdns := discovery.NewMdnsDiscoverer()
//	_ = s.Register(mdns)
//	_ = mdns.Start(ctx)
package shellies
