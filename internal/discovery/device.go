package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Xatter/shellies-ng/internal/device"
)

// Entry is a Shelly device found via mDNS.
type Entry struct {
	// DeviceID is the lowercase device ID (e.g., "shellyplus1-a8032ab12345")
	DeviceID string

	// Hostname is the mDNS hostname (e.g., "ShellyPlus1-A8032AB12345.local.")
	Hostname string

	// IP is the device address, IPv4 when available
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Gen is the API generation from the "gen" TXT record
	Gen int

	// Metadata contains the mDNS TXT record data
	// Common fields: "gen=2", "app=Plus1", "ver=1.4.4"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the entry
func (e *Entry) String() string {
	return fmt.Sprintf("Shelly %s (%s) at %s", e.DeviceID, e.Hostname, e.Address())
}

// Address returns host:port of the RPC endpoint. The port is omitted when it
// is the default.
func (e *Entry) Address() string {
	if e.Port == 0 || e.Port == DefaultPort {
		if ip := net.ParseIP(e.IP); ip != nil && ip.To4() == nil {
			return "[" + e.IP + "]"
		}
		return e.IP
	}
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (e *Entry) GetMetadata(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Identifiers converts the entry for the registry. mDNS does not carry the
// model designation, so Model is left empty.
func (e *Entry) Identifiers() device.Identifiers {
	return device.Identifiers{
		DeviceID: device.DeviceID(e.DeviceID),
		Address:  e.Address(),
		Hostname: e.Hostname,
		Gen:      e.Gen,
	}
}
