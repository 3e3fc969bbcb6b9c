package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a handler cannot be built for the
	// requested protocol, such as a missing address or outbound server.
	ErrConfiguration = errors.New("rpc: configuration error")

	// ErrNotConnected is returned when no connection to the device exists.
	ErrNotConnected = errors.New("rpc: not connected")

	// ErrClosed is returned by a handler after Close.
	ErrClosed = errors.New("rpc: handler closed")

	// ErrAuthRequired is returned when the device demands authentication and
	// no password (or a wrong one) is configured.
	ErrAuthRequired = errors.New("rpc: authentication required")

	// ErrDisconnected is returned for requests in flight when the connection drops.
	ErrDisconnected = errors.New("rpc: connection lost")
)

// Error is a JSON-RPC error object returned by a device.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// codeUnauthorized is the error code devices use for a digest challenge.
const codeUnauthorized = 401
