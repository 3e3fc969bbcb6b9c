package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
)

const writeWait = 10 * time.Second

// frame is a Shelly JSON-RPC message: request, response or notification.
type frame struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      uint64          `json:"id,omitempty"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Auth    *authParams     `json:"auth,omitempty"`
}

// Notification is an unsolicited message sent by a device, such as
// NotifyStatus, NotifyFullStatus or NotifyEvent.
type Notification struct {
	Src    string
	Method string
	Params json.RawMessage
}

// peer runs one WebSocket connection: it writes requests, matches responses
// by ID and passes notifications on.
type peer struct {
	conn     *websocket.Conn
	remote   string
	notify   func(Notification)
	closeFn  func() error
	interval time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *frame
	err     error
	done    chan struct{}
	once    sync.Once
}

func newPeer(conn *websocket.Conn, notify func(Notification), closeFn func() error, pingInterval time.Duration) *peer {
	if closeFn == nil {
		closeFn = conn.Close
	}
	return &peer{
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		notify:   notify,
		closeFn:  closeFn,
		interval: pingInterval,
		pending:  make(map[uint64]chan *frame),
		done:     make(chan struct{}),
	}
}

// start handles initial (if any) and then runs the read loop and keepalive.
func (p *peer) start(initial []byte) {
	if len(initial) > 0 {
		p.handle(initial)
	}
	if p.interval > 0 {
		p.conn.SetPongHandler(func(string) error {
			return p.conn.SetReadDeadline(time.Now().Add(2 * p.interval))
		})
		_ = p.conn.SetReadDeadline(time.Now().Add(2 * p.interval))
		go p.keepalive()
	}
	go p.readLoop()
}

func (p *peer) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.close(fmt.Errorf("%w: %w", ErrDisconnected, err))
			return
		}
		logging.LogFrame(p.remote, "received", data)
		if p.interval > 0 {
			_ = p.conn.SetReadDeadline(time.Now().Add(2 * p.interval))
		}
		p.handle(data)
	}
}

func (p *peer) keepalive() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.close(fmt.Errorf("%w: ping failed: %w", ErrDisconnected, err))
				return
			}
		}
	}
}

func (p *peer) handle(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		logging.Warn("Discarding malformed frame",
			zap.String("remote_addr", p.remote),
			zap.Error(err),
		)
		return
	}

	if f.Method != "" && f.ID == 0 {
		if p.notify != nil {
			p.notify(Notification{Src: f.Src, Method: f.Method, Params: f.Params})
		}
		return
	}

	p.mu.Lock()
	ch, ok := p.pending[f.ID]
	delete(p.pending, f.ID)
	p.mu.Unlock()

	if !ok {
		logging.Debug("Response for unknown request",
			zap.String("remote_addr", p.remote),
			zap.Uint64("id", f.ID),
		)
		return
	}
	ch <- &f
}

// call sends req and waits for the matching response.
func (p *peer) call(ctx context.Context, req *frame) (*frame, error) {
	ch := make(chan *frame, 1)

	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return nil, err
	}
	p.pending[req.ID] = ch
	p.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		p.forget(req.ID)
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if err := p.write(data); err != nil {
		p.forget(req.ID)
		p.close(fmt.Errorf("%w: %w", ErrDisconnected, err))
		return nil, fmt.Errorf("failed to send %s: %w", req.Method, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-p.done:
		return nil, p.closeErr()
	case <-ctx.Done():
		p.forget(req.ID)
		return nil, ctx.Err()
	}
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	logging.LogFrame(p.remote, "sent", data)
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) forget(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *peer) close(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.pending = make(map[uint64]chan *frame)
		p.mu.Unlock()

		close(p.done)
		_ = p.closeFn()
	})
}

func (p *peer) closeErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *peer) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
