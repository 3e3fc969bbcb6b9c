package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/options"
	"github.com/Xatter/shellies-ng/internal/server"
)

// Acceptor hands out connections that devices open to us. *server.Server
// implements it.
type Acceptor interface {
	Claim(deviceID string, fn server.Listener) (release func())
}

// OutboundHandler talks to a device that connects to our outbound server.
type OutboundHandler struct {
	*client

	release      func()
	pingInterval time.Duration

	mu     sync.Mutex
	peer   *peer
	ready  chan struct{}
	closed bool
}

// NewOutboundHandler claims deviceID on acceptor. Requests wait until the
// device connects.
func NewOutboundHandler(deviceID, password string, acceptor Acceptor, opts WebSocketOptions) *OutboundHandler {
	opts = opts.withDefaults()

	h := &OutboundHandler{
		client:       newClient(deviceID, options.ProtocolOutboundWebSocket, password, opts),
		pingInterval: opts.PingInterval,
		ready:        make(chan struct{}),
	}
	h.release = acceptor.Claim(deviceID, h.accept)
	return h
}

func (h *OutboundHandler) accept(c *server.Connection) {
	p := newPeer(c.Conn, h.dispatch, c.Close, h.pingInterval)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.Close()
		return
	}
	old := h.peer
	if old == nil {
		close(h.ready)
	}
	h.peer = p
	h.mu.Unlock()

	if old != nil {
		logging.Info("Device reconnected, replacing previous connection",
			logging.DeviceField(h.deviceID),
			zap.String("remote_addr", c.RemoteAddr),
		)
		old.close(fmt.Errorf("%w: replaced by a newer connection", ErrDisconnected))
	}

	p.start(c.Initial)
	go h.watch(p)
}

func (h *OutboundHandler) watch(p *peer) {
	<-p.done

	h.mu.Lock()
	h.detach(p)
	h.mu.Unlock()

	logging.Debug("Outbound connection ended",
		logging.DeviceField(h.deviceID),
		zap.Error(p.closeErr()),
	)
}

// detach forgets p if it is still current so the next wait blocks until a
// new connection arrives. Must be called with mu held.
func (h *OutboundHandler) detach(p *peer) {
	if h.peer == p {
		h.peer = nil
		h.ready = make(chan struct{})
	}
}

// Connected implements Handler.
func (h *OutboundHandler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer != nil && h.peer.alive()
}

// Request implements Handler. It waits for the device to connect, bounded by
// ctx and the request timeout.
func (h *OutboundHandler) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	p, err := h.wait(ctx)
	if err != nil {
		return nil, err
	}
	return h.do(ctx, p, method, params)
}

func (h *OutboundHandler) wait(ctx context.Context) (*peer, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrClosed
		}
		if p := h.peer; p != nil {
			if p.alive() {
				h.mu.Unlock()
				return p, nil
			}
			// Dropped but watch has not caught up yet; ready is still closed.
			h.detach(p)
		}
		ready := h.ready
		h.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s has not connected: %w", ErrNotConnected, h.deviceID, ctx.Err())
		}
	}
}

// Close implements Handler.
func (h *OutboundHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	p := h.peer
	h.mu.Unlock()

	h.release()
	if p != nil {
		p.close(ErrClosed)
	}
	return nil
}
