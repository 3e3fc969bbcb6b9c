package discovery

import (
	"sync"

	"github.com/Xatter/shellies-ng/internal/device"
)

// StaticDiscoverer reports a fixed list of devices, typically from the
// configuration file.
type StaticDiscoverer struct {
	Emitter

	mu      sync.Mutex
	devices []device.Identifiers
}

// NewStaticDiscoverer creates a discoverer for the given devices.
func NewStaticDiscoverer(devices ...device.Identifiers) *StaticDiscoverer {
	return &StaticDiscoverer{devices: devices}
}

// Add appends a device to the list.
func (s *StaticDiscoverer) Add(ids device.Identifiers) {
	s.mu.Lock()
	s.devices = append(s.devices, ids)
	s.mu.Unlock()
}

// Discover emits every configured device.
func (s *StaticDiscoverer) Discover() {
	s.mu.Lock()
	devices := append([]device.Identifiers(nil), s.devices...)
	s.mu.Unlock()

	for _, ids := range devices {
		s.Emit(ids)
	}
}
