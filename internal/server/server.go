package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
)

const (
	// DefaultPath is the HTTP path devices connect to.
	DefaultPath = "/"

	// DefaultIdentifyTimeout bounds how long a new connection may take to send
	// its first frame.
	DefaultIdentifyTimeout = 10 * time.Second

	// DefaultUnclaimedTimeout is how long a connection from a device nobody has
	// claimed is kept open.
	DefaultUnclaimedTimeout = 2 * time.Minute

	// maxIdentifyFrame caps the size of the first frame.
	maxIdentifyFrame = 64 * 1024
)

var (
	// ErrMissingSource is returned when the first frame carries no device ID.
	ErrMissingSource = errors.New("server: first frame has no src")

	// ErrNotListening is returned by Serve when Listen has not been called.
	ErrNotListening = errors.New("server: not listening")
)

// Config holds the server configuration
type Config struct {
	Host             string
	Port             int
	Path             string        // HTTP path for the WebSocket endpoint (default "/")
	CertPath         string        // Optional TLS certificate; plain ws:// when empty
	KeyPath          string        // Optional TLS private key
	CertPEM          []byte        // Inline alternative to CertPath
	KeyPEM           []byte        // Inline alternative to KeyPath
	IdentifyTimeout  time.Duration // Deadline for the first frame
	UnclaimedTimeout time.Duration // How long unclaimed connections are held
}

// Connection is an identified device connection handed to its claimant.
type Connection struct {
	DeviceID   string
	RemoteAddr string
	Conn       *websocket.Conn

	// Initial is the first frame, consumed while identifying the device.
	// The claimant should process it like any other frame.
	Initial []byte

	server *Server
	once   sync.Once
	timer  *time.Timer
}

// Close closes the underlying connection and stops tracking it.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		if c.timer != nil {
			c.timer.Stop()
		}
		err = c.Conn.Close()
		if c.server != nil {
			c.server.untrack(c)
		}
		logging.LogConnection(c.RemoteAddr, "websocket_closed", logging.DeviceField(c.DeviceID))
	})
	return err
}

// Listener receives connections for a claimed device ID.
type Listener func(*Connection)

type claim struct {
	listener Listener
}

// Server accepts WebSocket connections initiated by devices (outbound
// WebSocket) and routes each one to whoever claimed its device ID.
type Server struct {
	config    *Config
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
	http      *http.Server
	listener  net.Listener

	mu          sync.Mutex
	activeConns map[*Connection]struct{}
	claims      map[string]*claim
	waiting     map[string]*Connection
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	cfg := *config
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.IdentifyTimeout <= 0 {
		cfg.IdentifyTimeout = DefaultIdentifyTimeout
	}
	if cfg.UnclaimedTimeout <= 0 {
		cfg.UnclaimedTimeout = DefaultUnclaimedTimeout
	}

	tlsConfig, err := loadTLSConfig(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	s := &Server{
		config:    &cfg,
		tlsConfig: tlsConfig,
		upgrader: websocket.Upgrader{
			// Devices do not send an Origin header we could check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		activeConns: make(map[*Connection]struct{}),
		claims:      make(map[string]*claim),
		waiting:     make(map[string]*Connection),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWebSocket)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.IdentifyTimeout,
	}

	return s, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Listen opens the listening socket without serving yet.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logging.Info("Outbound WebSocket server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Bool("tls", s.tlsConfig != nil),
	)
	return nil
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// handleWebSocket upgrades the request and identifies the device from the
// src field of its first frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	deviceID, initial, err := s.identify(ws)
	if err != nil {
		logging.Warn("Failed to identify device connection",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		_ = ws.Close()
		return
	}

	conn := &Connection{
		DeviceID:   deviceID,
		RemoteAddr: remoteAddr,
		Conn:       ws,
		Initial:    initial,
		server:     s,
	}
	s.track(conn)
	logging.LogConnection(remoteAddr, "device_identified", logging.DeviceField(deviceID))

	s.dispatch(conn)
}

func (s *Server) identify(ws *websocket.Conn) (string, []byte, error) {
	ws.SetReadLimit(maxIdentifyFrame)
	if err := ws.SetReadDeadline(time.Now().Add(s.config.IdentifyTimeout)); err != nil {
		return "", nil, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read first frame: %w", err)
	}
	logging.LogFrame(ws.RemoteAddr().String(), "received", data)

	// Clear limits; the claimant manages its own deadlines.
	ws.SetReadLimit(0)
	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return "", nil, err
	}

	var hdr struct {
		Src string `json:"src"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return "", nil, fmt.Errorf("failed to parse first frame: %w", err)
	}
	if hdr.Src == "" {
		return "", nil, ErrMissingSource
	}
	return hdr.Src, data, nil
}

// dispatch hands conn to its claimant or parks it until claimed. A newer
// connection from the same device replaces a parked older one.
func (s *Server) dispatch(conn *Connection) {
	s.mu.Lock()
	c, claimed := s.claims[conn.DeviceID]
	var replaced *Connection
	if !claimed {
		replaced = s.waiting[conn.DeviceID]
		s.waiting[conn.DeviceID] = conn
		conn.timer = time.AfterFunc(s.config.UnclaimedTimeout, func() {
			s.expire(conn)
		})
	}
	s.mu.Unlock()

	if replaced != nil {
		_ = replaced.Close()
	}
	if claimed {
		c.listener(conn)
		return
	}

	logging.Debug("Holding connection from unclaimed device",
		logging.DeviceField(conn.DeviceID),
		zap.String("remote_addr", conn.RemoteAddr),
	)
}

func (s *Server) expire(conn *Connection) {
	s.mu.Lock()
	current := s.waiting[conn.DeviceID] == conn
	if current {
		delete(s.waiting, conn.DeviceID)
	}
	s.mu.Unlock()

	if current {
		logging.Warn("Closing unclaimed device connection",
			logging.DeviceField(conn.DeviceID),
			zap.String("remote_addr", conn.RemoteAddr),
		)
		_ = conn.Close()
	}
}

// Claim registers fn as the receiver of connections from deviceID. A
// connection already waiting for that device is delivered immediately.
// The returned function releases the claim.
func (s *Server) Claim(deviceID string, fn Listener) (release func()) {
	c := &claim{listener: fn}

	s.mu.Lock()
	s.claims[deviceID] = c
	waiting := s.waiting[deviceID]
	delete(s.waiting, deviceID)
	s.mu.Unlock()

	if waiting != nil {
		if waiting.timer != nil {
			waiting.timer.Stop()
		}
		fn(waiting)
	}

	return func() {
		s.mu.Lock()
		if s.claims[deviceID] == c {
			delete(s.claims, deviceID)
		}
		s.mu.Unlock()
	}
}

func (s *Server) track(c *Connection) {
	s.mu.Lock()
	s.activeConns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.activeConns, c)
	if s.waiting[c.DeviceID] == c {
		delete(s.waiting, c.DeviceID)
	}
	s.mu.Unlock()
}

// Shutdown stops accepting connections and closes all device connections.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down outbound WebSocket server...")

	err := s.http.Shutdown(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error("Error shutting down HTTP server", zap.Error(err))
	}

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.activeConns))
	for c := range s.activeConns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		logging.Info("Closing active connection",
			zap.String("remote_addr", c.RemoteAddr),
			logging.DeviceField(c.DeviceID),
		)
		_ = c.Close()
	}

	return err
}

// ActiveConnections returns the number of identified device connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
