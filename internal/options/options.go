package options

import (
	"context"
	"errors"
	"fmt"
)

// Protocol selects the RPC transport used for a device.
type Protocol string

const (
	// ProtocolDefault leaves the choice to the transport factory.
	ProtocolDefault Protocol = ""
	// ProtocolWebSocket connects to the device's /rpc WebSocket endpoint.
	ProtocolWebSocket Protocol = "websocket"
	// ProtocolOutboundWebSocket waits for the device to connect to our server.
	ProtocolOutboundWebSocket Protocol = "outboundWebsocket"
)

var (
	// ErrConflictingSources is returned when both a table and a callback are configured.
	ErrConflictingSources = errors.New("options: table and resolver callback are mutually exclusive")

	// ErrInvalidProtocol is returned for protocol names that are not recognised.
	ErrInvalidProtocol = errors.New("options: invalid protocol")
)

// Valid reports whether p is a known protocol (the default included).
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolDefault, ProtocolWebSocket, ProtocolOutboundWebSocket:
		return true
	}
	return false
}

func (p Protocol) String() string {
	if p == ProtocolDefault {
		return "default"
	}
	return string(p)
}

// ParseProtocol converts a configuration string to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(s)
	if !p.Valid() {
		return ProtocolDefault, fmt.Errorf("%w: %q", ErrInvalidProtocol, s)
	}
	return p, nil
}

// DeviceOptions is the effective configuration of one device.
type DeviceOptions struct {
	Exclude  bool
	Protocol Protocol
	Password string
}

// Partial holds the fields a source chose to set. Nil fields keep the default.
type Partial struct {
	Exclude  *bool
	Protocol *Protocol
	Password *string
}

// Merge overlays p on top of base.
func (p Partial) Merge(base DeviceOptions) DeviceOptions {
	if p.Exclude != nil {
		base.Exclude = *p.Exclude
	}
	if p.Protocol != nil {
		base.Protocol = *p.Protocol
	}
	if p.Password != nil {
		base.Password = *p.Password
	}
	return base
}

// Resolver looks up per-device options by device ID.
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (Partial, error)
}

// Table is a static per-ID options table.
type Table map[string]Partial

// Resolve implements Resolver.
func (t Table) Resolve(_ context.Context, deviceID string) (Partial, error) {
	return t[deviceID], nil
}

// Func adapts a callback to the Resolver interface. The callback may block.
type Func func(ctx context.Context, deviceID string) (Partial, error)

// Resolve implements Resolver.
func (f Func) Resolve(ctx context.Context, deviceID string) (Partial, error) {
	return f(ctx, deviceID)
}

// Source returns the single active resolver: the callback when set, otherwise
// the table, otherwise nil. Configuring both is an error.
func Source(table Table, fn Func) (Resolver, error) {
	switch {
	case table != nil && fn != nil:
		return nil, ErrConflictingSources
	case fn != nil:
		return fn, nil
	case table != nil:
		return table, nil
	}
	return nil, nil
}

// Defaults returns the options used when no source sets anything.
func Defaults() DeviceOptions {
	return DeviceOptions{}
}

// Resolve produces the effective options for deviceID. The resolver is
// consulted on every call; a nil resolver yields Defaults.
func Resolve(ctx context.Context, r Resolver, deviceID string) (DeviceOptions, error) {
	opts := Defaults()
	if r == nil {
		return opts, nil
	}

	partial, err := r.Resolve(ctx, deviceID)
	if err != nil {
		return opts, fmt.Errorf("failed to resolve options for %s: %w", deviceID, err)
	}
	if partial.Protocol != nil && !partial.Protocol.Valid() {
		return opts, fmt.Errorf("%w: %q for %s", ErrInvalidProtocol, *partial.Protocol, deviceID)
	}

	return partial.Merge(opts), nil
}

// Bool, ProtocolPtr and String build Partial fields inline.
func Bool(v bool) *bool { return &v }

// ProtocolPtr returns a pointer to p.
func ProtocolPtr(p Protocol) *Protocol { return &p }

// String returns a pointer to s.
func String(s string) *string { return &s }
