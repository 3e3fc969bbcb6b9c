package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/options"
)

// Defaults for WebSocketOptions. Zero timeout and reconnect fields fall back
// to them; PingInterval stays off unless set, so DefaultPingInterval is what
// the config file uses.
const (
	// DefaultRequestTimeout bounds a single request, including the wait for
	// an outbound device to connect.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultPingInterval is how often an idle connection is pinged.
	DefaultPingInterval   = 60 * time.Second
	// DefaultReconnectMin is the first delay before redialing a dropped
	// device.
	DefaultReconnectMin   = 5 * time.Second
	// DefaultReconnectMax caps the doubling reconnect delay.
	DefaultReconnectMax   = 60 * time.Second

	clientIDPrefix = "shellies-ng-"
	jsonRPCVersion = "2.0"
)

// Handler exchanges JSON-RPC messages with one device.
type Handler interface {
	// DeviceID returns the ID of the device this handler talks to.
	DeviceID() string
	// Protocol returns the transport this handler was built for.
	Protocol() options.Protocol
	// Connected reports whether a connection to the device is open.
	Connected() bool
	// Request calls method with params and returns the raw result.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	// OnNotification registers fn for device notifications.
	OnNotification(fn func(Notification)) (cancel func())
	// Close releases the connection. Pending and later requests fail with ErrClosed.
	Close() error
}

// WebSocketOptions configures the handlers built by a Factory.
type WebSocketOptions struct {
	// ClientID is sent as src in every request. Defaults to shellies-ng-<uuid>.
	ClientID       string
	RequestTimeout time.Duration
	// PingInterval enables keepalive pings; zero disables them.
	PingInterval time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.ClientID == "" {
		o.ClientID = clientIDPrefix + uuid.NewString()
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = DefaultReconnectMin
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = max(DefaultReconnectMax, o.ReconnectMin)
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// client holds what both handler kinds share: request IDs, auth state and
// notification listeners.
type client struct {
	deviceID string
	protocol options.Protocol
	src      string
	password string
	timeout  time.Duration

	nextID atomic.Uint64

	authMu    sync.Mutex
	challenge *challenge

	listenersMu  sync.Mutex
	listeners    map[int]func(Notification)
	nextListener int
}

func newClient(deviceID string, protocol options.Protocol, password string, opts WebSocketOptions) *client {
	return &client{
		deviceID:  deviceID,
		protocol:  protocol,
		src:       opts.ClientID,
		password:  password,
		timeout:   opts.RequestTimeout,
		listeners: make(map[int]func(Notification)),
	}
}

func (c *client) DeviceID() string { return c.deviceID }

func (c *client) Protocol() options.Protocol { return c.protocol }

func (c *client) OnNotification(fn func(Notification)) (cancel func()) {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *client) dispatch(n Notification) {
	c.listenersMu.Lock()
	fns := make([]func(Notification), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// do sends one request over p, answering a digest challenge once if needed.
func (c *client) do(ctx context.Context, p *peer, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params for %s: %w", method, err)
		}
	}

	resp, err := c.send(ctx, p, method, raw, c.cachedAuth())
	if err != nil {
		return nil, err
	}

	if resp.Error != nil && resp.Error.Code == codeUnauthorized {
		if c.password == "" {
			return nil, fmt.Errorf("%w: %s", ErrAuthRequired, c.deviceID)
		}
		ch, perr := parseChallenge(resp.Error.Message)
		if perr != nil {
			return nil, perr
		}
		logging.Debug("Answering auth challenge",
			logging.DeviceField(c.deviceID),
			zap.String("realm", ch.Realm),
		)

		resp, err = c.send(ctx, p, method, raw, ch.answer(c.password))
		if err != nil {
			return nil, err
		}
		if resp.Error != nil && resp.Error.Code == codeUnauthorized {
			return nil, fmt.Errorf("%w: %s rejected the password", ErrAuthRequired, c.deviceID)
		}
		c.setChallenge(ch)
	}

	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *client) send(ctx context.Context, p *peer, method string, params json.RawMessage, auth *authParams) (*frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &frame{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Src:     c.src,
		Method:  method,
		Params:  params,
		Auth:    auth,
	}

	resp, err := p.call(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out on %s: %w", method, c.deviceID, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *client) cachedAuth() *authParams {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.challenge == nil || c.password == "" {
		return nil
	}
	c.challenge.NC++
	return c.challenge.answer(c.password)
}

func (c *client) setChallenge(ch *challenge) {
	c.authMu.Lock()
	c.challenge = ch
	c.authMu.Unlock()
}
