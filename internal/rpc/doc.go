// Package rpc implements the Shelly Gen2 JSON-RPC transports.
//
// Two handlers implement the Handler interface:
//
//   - WebSocketHandler dials ws://<address>/rpc on the device and reconnects
//     with exponential backoff when the connection drops.
//   - OutboundHandler waits for the device to connect to the outbound server
//     (package server) and uses whichever connection arrived last.
//
// Requests carry a monotonically increasing id and the client's src. When a
// device answers with error 401 the handler computes a SHA-256 digest from
// the challenge and the configured password and retries once.
//
// Factory picks the handler for a device from its resolved options.
package rpc
