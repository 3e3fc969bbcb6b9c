package shellies

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/device"
	"github.com/Xatter/shellies-ng/internal/discovery"
	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/options"
	"github.com/Xatter/shellies-ng/internal/rpc"
)

// DefaultLoadTimeout bounds auto-loading of status and config.
const DefaultLoadTimeout = 30 * time.Second

// ErrClosed is returned by operations on a closed Shellies.
var ErrClosed = errors.New("shellies: closed")

// HandlerFactory builds RPC handlers. *rpc.Factory implements it.
type HandlerFactory interface {
	Create(deviceID, address string, opts options.DeviceOptions) (rpc.Handler, error)
}

// acceptorSetter is implemented by factories that support outbound servers
// supplied after construction.
type acceptorSetter interface {
	SetAcceptor(a rpc.Acceptor)
}

// Options configures a Shellies instance.
type Options struct {
	// WebSocket configures the default handler factory.
	WebSocket rpc.WebSocketOptions

	// Server accepts outbound WebSocket connections. Leave nil when no
	// device uses the outbound protocol.
	Server rpc.Acceptor

	// AutoLoadStatus and AutoLoadConfig load status and config of every
	// added device in the background.
	AutoLoadStatus bool
	AutoLoadConfig bool
	LoadTimeout    time.Duration

	// DeviceOptions and DeviceOptionsFunc are mutually exclusive sources of
	// per-device options.
	DeviceOptions     options.Table
	DeviceOptionsFunc options.Func

	// Constructor builds devices. Defaults to device.DefaultCatalog().
	Constructor device.Constructor

	// Factory builds RPC handlers. Defaults to rpc.NewFactory(WebSocket, Server).
	Factory HandlerFactory
}

// Shellies is the device registry together with the discovery pipeline that
// feeds it.
type Shellies struct {
	*Registry

	resolver    options.Resolver
	factory     HandlerFactory
	constructor device.Constructor
	autoStatus  bool
	autoConfig  bool
	loadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	discoverers map[discovery.Discoverer]discovery.SubscriptionID
}

// New creates a Shellies instance. It fails if both a device options table
// and a callback are configured.
func New(opts Options) (*Shellies, error) {
	resolver, err := options.Source(opts.DeviceOptions, opts.DeviceOptionsFunc)
	if err != nil {
		return nil, err
	}

	factory := opts.Factory
	if factory == nil {
		factory = rpc.NewFactory(opts.WebSocket, opts.Server)
	} else if opts.Server != nil {
		if s, ok := factory.(acceptorSetter); ok {
			s.SetAcceptor(opts.Server)
		}
	}

	constructor := opts.Constructor
	if constructor == nil {
		constructor = device.DefaultCatalog()
	}

	loadTimeout := opts.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Shellies{
		Registry:    NewRegistry(),
		resolver:    resolver,
		factory:     factory,
		constructor: constructor,
		autoStatus:  opts.AutoLoadStatus,
		autoConfig:  opts.AutoLoadConfig,
		loadTimeout: loadTimeout,
		ctx:         ctx,
		cancel:      cancel,
		discoverers: make(map[discovery.Discoverer]discovery.SubscriptionID),
	}, nil
}

// Register subscribes to d. Registering the same discoverer twice is a no-op.
func (s *Shellies) Register(d discovery.Discoverer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.discoverers[d]; ok {
		return nil
	}
	s.discoverers[d] = d.Subscribe(s.discover)
	return nil
}

// Unregister unsubscribes from d. Devices already pending from d complete
// normally.
func (s *Shellies) Unregister(d discovery.Discoverer) {
	s.mu.Lock()
	sub, ok := s.discoverers[d]
	delete(s.discoverers, d)
	s.mu.Unlock()

	if ok {
		d.Unsubscribe(sub)
	}
}

// SetOutboundServer supplies the outbound server after construction.
// Discoveries processed afterwards can use the outbound protocol.
func (s *Shellies) SetOutboundServer(a rpc.Acceptor) error {
	setter, ok := s.factory.(acceptorSetter)
	if !ok {
		return fmt.Errorf("%w: factory does not accept an outbound server", rpc.ErrConfiguration)
	}
	setter.SetAcceptor(a)
	return nil
}

// Reconsider returns an ignored identity to unknown, so the next discovery
// of it resolves options again. It reports whether id was ignored.
func (s *Shellies) Reconsider(id device.DeviceID) bool {
	ok := s.reconsider(id)
	if ok {
		logging.Info("Reconsidering ignored device", logging.DeviceField(string(id)))
	}
	return ok
}

// ReconsiderAll applies Reconsider to every ignored identity and returns how
// many there were.
func (s *Shellies) ReconsiderAll() int {
	n := 0
	for _, id := range s.ignoredIDs() {
		if s.Reconsider(id) {
			n++
		}
	}
	return n
}

// Close stops discovery, waits for in-flight work, then removes and closes
// every device.
func (s *Shellies) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	discoverers := s.discoverers
	s.discoverers = nil
	s.mu.Unlock()

	for d, sub := range discoverers {
		d.Unsubscribe(sub)
	}
	s.cancel()
	s.wg.Wait()

	devices := s.snapshot()
	s.Clear()

	var errs []error
	for _, d := range devices {
		if err := closeDevice(d); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", d.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// closeDevice closes d itself when it can, otherwise its handler.
func closeDevice(d device.Device) error {
	if c, ok := d.(interface{ Close() error }); ok {
		return c.Close()
	}
	return d.Handler().Close()
}

// spawn runs fn in the background unless s is closed.
func (s *Shellies) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Shellies) autoLoad(d device.Device) {
	loader, ok := d.(device.Loader)
	if !ok || (!s.autoStatus && !s.autoConfig) {
		return
	}

	s.spawn(func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.loadTimeout)
		defer cancel()

		if s.autoStatus {
			if err := loader.LoadStatus(ctx); err != nil {
				s.emitError(d.ID(), err)
			}
		}
		if s.autoConfig {
			if err := loader.LoadConfig(ctx); err != nil {
				s.emitError(d.ID(), err)
			}
		}
		logging.Debug("Auto-load finished", logging.DeviceField(string(d.ID())),
			zap.Bool("status", s.autoStatus),
			zap.Bool("config", s.autoConfig),
		)
	})
}
