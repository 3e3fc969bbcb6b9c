package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/options"
	"github.com/Xatter/shellies-ng/internal/version"
)

// WebSocketHandler connects to the device's own /rpc endpoint.
type WebSocketHandler struct {
	*client

	url  string
	opts WebSocketOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dialMu sync.Mutex
	mu     sync.Mutex
	peer   *peer
	closed bool
}

// NewWebSocketHandler creates a handler for the device at address (host or
// host:port). No connection is made until Connect or the first Request.
func NewWebSocketHandler(deviceID, address, password string, opts WebSocketOptions) *WebSocketHandler {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketHandler{
		client: newClient(deviceID, options.ProtocolWebSocket, password, opts),
		url:    fmt.Sprintf("ws://%s/rpc", address),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// URL returns the endpoint the handler dials.
func (h *WebSocketHandler) URL() string { return h.url }

// Connected reports whether the WebSocket is open.
func (h *WebSocketHandler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer != nil && h.peer.alive()
}

// Connect opens the connection if it is not open yet.
func (h *WebSocketHandler) Connect(ctx context.Context) error {
	_, err := h.connect(ctx)
	return err
}

// Request implements Handler.
func (h *WebSocketHandler) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p, err := h.connect(ctx)
	if err != nil {
		return nil, err
	}
	return h.do(ctx, p, method, params)
}

func (h *WebSocketHandler) connect(ctx context.Context) (*peer, error) {
	h.dialMu.Lock()
	defer h.dialMu.Unlock()

	h.mu.Lock()
	closed, p := h.closed, h.peer
	h.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	if p != nil && p.alive() {
		return p, nil
	}
	return h.dial(ctx)
}

// dial must be called with dialMu held.
func (h *WebSocketHandler) dial(ctx context.Context) (*peer, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	conn, _, err := h.opts.Dialer.DialContext(ctx, h.url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrNotConnected, h.url, err)
	}

	p := newPeer(conn, h.dispatch, nil, h.opts.PingInterval)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	h.peer = p
	// Added under mu so Close never reaches wg.Wait between the closed
	// check and Add.
	h.wg.Add(1)
	h.mu.Unlock()

	logging.LogConnection(h.url, "websocket_connected", logging.DeviceField(h.deviceID))
	p.start(nil)
	go h.watch(p)

	return p, nil
}

// watch waits for p to drop and reconnects with exponential backoff.
func (h *WebSocketHandler) watch(p *peer) {
	defer h.wg.Done()

	select {
	case <-p.done:
	case <-h.ctx.Done():
		p.close(ErrClosed)
		return
	}

	logging.Warn("Device connection lost",
		logging.DeviceField(h.deviceID),
		zap.Error(p.closeErr()),
	)

	delay := h.opts.ReconnectMin
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-time.After(delay):
		}

		h.dialMu.Lock()
		h.mu.Lock()
		current := h.peer
		h.mu.Unlock()

		// A request may have reconnected in the meantime.
		if current != p && current != nil && current.alive() {
			h.dialMu.Unlock()
			return
		}
		_, err := h.dial(h.ctx)
		h.dialMu.Unlock()

		if err == nil {
			return
		}
		logging.Debug("Reconnect failed",
			logging.DeviceField(h.deviceID),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		delay = min(delay*2, h.opts.ReconnectMax)
	}
}

// Close implements Handler.
func (h *WebSocketHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	p := h.peer
	h.mu.Unlock()

	h.cancel()
	if p != nil {
		p.close(ErrClosed)
	}
	h.wg.Wait()
	return nil
}
