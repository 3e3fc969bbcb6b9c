// Package options resolves per-device configuration: whether a discovered
// device is excluded, which RPC protocol is used to reach it and the password
// for digest authentication.
//
// A Resolver is either a static Table keyed by device ID or a Func callback.
// Only one source is active at a time (see Source). Resolve is called on every
// discovery so operators can change the answer at runtime.
package options
