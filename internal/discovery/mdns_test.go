package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantID   string
		wantIP   string
		wantPort int
		wantGen  int
	}{
		{
			name: "Plus 1 with id TXT record",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ShellyPlus1-A8032AB12345"},
				HostName:      "ShellyPlus1-A8032AB12345.local.",
				Port:          80,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"gen=2", "app=Plus1", "ver=1.4.4", "id=shellyplus1-a8032ab12345"},
			},
			wantID:   "shellyplus1-a8032ab12345",
			wantIP:   "192.168.4.16",
			wantPort: 80,
			wantGen:  2,
		},
		{
			name: "id from instance name",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ShellyPro4PM-C8F09E8A1B2C"},
				HostName:      "ShellyPro4PM-C8F09E8A1B2C.local.",
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
				Text:          []string{"gen=2"},
			},
			wantID:   "shellypro4pm-c8f09e8a1b2c",
			wantIP:   "10.0.0.5",
			wantPort: 80,
			wantGen:  2,
		},
		{
			name: "id from hostname without trailing dot",
			entry: &zeroconf.ServiceEntry{
				HostName: "shelly1g3-84fce63a1b2c.local",
				Port:     8080,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.100")},
				Text:     []string{"gen=3"},
			},
			wantID:   "shelly1g3-84fce63a1b2c",
			wantIP:   "192.168.1.100",
			wantPort: 8080,
			wantGen:  3,
		},
		{
			name: "missing gen assumes Gen2",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "shellyplusi4-aabbccddeeff"},
				AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantID:   "shellyplusi4-aabbccddeeff",
			wantIP:   "172.16.0.1",
			wantPort: 80,
			wantGen:  2,
		},
		{
			name: "Gen1 device is skipped",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "shelly1-aabbcc"},
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
				Text:          []string{"gen=1"},
			},
			wantNil: true,
		},
		{
			name: "non-Shelly device",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "printer"},
				HostName:      "someotherdevice.local",
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no IP address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ShellyPlus1-A8032AB12345"},
				Text:          []string{"gen=2"},
			},
			wantNil: true,
		},
		{
			name: "IPv6 only device",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ShellyPlus1-A8032AB12345"},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantID:   "shellyplus1-a8032ab12345",
			wantIP:   "fe80::1",
			wantPort: 80,
			wantGen:  2,
		},
		{
			name: "both IPv4 and IPv6 (should prefer IPv4)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ShellyPlus1-A8032AB12345"},
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::2")},
			},
			wantID:   "shellyplus1-a8032ab12345",
			wantIP:   "192.168.1.50",
			wantPort: 80,
			wantGen:  2,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if entry != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", entry)
				}
				return
			}

			if entry == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil entry")
			}
			if entry.DeviceID != tt.wantID {
				t.Errorf("entry.DeviceID = %v, want %v", entry.DeviceID, tt.wantID)
			}
			if entry.IP != tt.wantIP {
				t.Errorf("entry.IP = %v, want %v", entry.IP, tt.wantIP)
			}
			if entry.Port != tt.wantPort {
				t.Errorf("entry.Port = %v, want %v", entry.Port, tt.wantPort)
			}
			if entry.Gen != tt.wantGen {
				t.Errorf("entry.Gen = %v, want %v", entry.Gen, tt.wantGen)
			}
			if time.Since(entry.DiscoveredAt) > time.Second {
				t.Errorf("entry.DiscoveredAt is not recent: %v", entry.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "ShellyPlus1-A8032AB12345"},
		AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
		Text:          []string{"gen=2", "app=Plus1", "flag", "ver=1.4.4"},
	}

	entry := parseServiceEntry(e)
	if entry == nil {
		t.Fatal("parseServiceEntry() = nil, want entry")
	}

	expectedMetadata := map[string]string{
		"gen":  "2",
		"app":  "Plus1",
		"flag": "", // Key without value
		"ver":  "1.4.4",
	}

	if len(entry.Metadata) != len(expectedMetadata) {
		t.Errorf("entry.Metadata has %d entries, want %d", len(entry.Metadata), len(expectedMetadata))
	}
	for key, expectedValue := range expectedMetadata {
		if actualValue, ok := entry.Metadata[key]; !ok {
			t.Errorf("entry.Metadata missing key %q", key)
		} else if actualValue != expectedValue {
			t.Errorf("entry.Metadata[%q] = %q, want %q", key, actualValue, expectedValue)
		}
	}
}

func TestMdnsDiscoverer_StopWithoutStart(t *testing.T) {
	m := NewMdnsDiscoverer()
	m.Stop()
}
