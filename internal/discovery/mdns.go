package discovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
)

const (
	// ServiceType is the mDNS service type advertised by Gen2+ Shelly devices
	ServiceType = "_shelly._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for a one-shot scan
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the default HTTP port for Shelly devices
	DefaultPort = 80

	// minGen is the oldest API generation with JSON-RPC support
	minGen = 2
)

// ErrAlreadyStarted is returned by Start when browsing is already running.
var ErrAlreadyStarted = errors.New("discovery: mDNS discoverer already started")

// idPattern matches Shelly device IDs (e.g., "shellyplus1-a8032ab12345")
var idPattern = regexp.MustCompile(`^shelly[a-z0-9]+-[0-9a-f]+$`)

// MdnsDiscoverer browses for Shelly devices continuously and emits every
// device it finds.
type MdnsDiscoverer struct {
	Emitter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMdnsDiscoverer creates a stopped mDNS discoverer.
func NewMdnsDiscoverer() *MdnsDiscoverer {
	return &MdnsDiscoverer{}
}

// Start begins browsing until ctx is cancelled or Stop is called.
func (m *MdnsDiscoverer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return ErrAlreadyStarted
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				if entry := parseServiceEntry(e); entry != nil {
					logging.Debug("mDNS device found",
						logging.DeviceField(entry.DeviceID),
						zap.String("address", entry.Address()),
					)
					m.Emit(entry.Identifiers())
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	m.cancel = cancel
	m.done = done
	logging.Info("mDNS discovery started", zap.String("service", ServiceType))
	return nil
}

// Stop ends browsing. It is safe to call when not started.
func (m *MdnsDiscoverer) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logging.Info("mDNS discovery stopped")
}

// Scan discovers Shelly devices for the given time and returns them.
func Scan(ctx context.Context, timeout time.Duration) ([]*Entry, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]*Entry)
	var order []string
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				entry := parseServiceEntry(e)
				if entry == nil {
					continue
				}
				if _, seen := found[entry.DeviceID]; !seen {
					order = append(order, entry.DeviceID)
				}
				found[entry.DeviceID] = entry
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done

	result := make([]*Entry, 0, len(order))
	for _, id := range order {
		result = append(result, found[id])
	}
	return result, nil
}

// parseServiceEntry converts a zeroconf service entry to an Entry.
// Returns nil if the entry is not a Gen2+ Shelly device.
func parseServiceEntry(e *zeroconf.ServiceEntry) *Entry {
	if e == nil {
		return nil
	}

	// Parse TXT records into metadata
	metadata := make(map[string]string)
	for _, txt := range e.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	id := deviceID(e, metadata)
	if id == "" {
		return nil
	}

	gen := minGen
	if v, ok := metadata["gen"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < minGen {
			return nil
		}
		gen = n
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(e.AddrIPv4) > 0 {
		ip = e.AddrIPv4[0].String()
	} else if len(e.AddrIPv6) > 0 {
		ip = e.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := e.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Entry{
		DeviceID:     id,
		Hostname:     e.HostName,
		IP:           ip,
		Port:         port,
		Gen:          gen,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// deviceID takes the ID from the "id" TXT record, falling back to the
// instance name and then the hostname.
func deviceID(e *zeroconf.ServiceEntry, metadata map[string]string) string {
	candidates := []string{
		metadata["id"],
		e.Instance,
		strings.TrimSuffix(strings.TrimSuffix(e.HostName, "."), ".local"),
	}
	for _, c := range candidates {
		c = strings.ToLower(c)
		if idPattern.MatchString(c) {
			return c
		}
	}
	return ""
}
