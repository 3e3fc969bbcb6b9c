package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Xatter/shellies-ng/internal/device"
	"github.com/Xatter/shellies-ng/internal/discovery"
	"github.com/Xatter/shellies-ng/internal/rpc"
	"github.com/Xatter/shellies-ng/internal/shellies"
)

type testDevice struct{}

func (testDevice) ID() device.DeviceID { return "shellyplus1-aa" }

func (testDevice) Model() string { return "SNSW-001X16EU" }

func (testDevice) Handler() rpc.Handler { return nil }

func TestRenderEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name  string
		event shellies.Event
		want  []string
	}{
		{
			name:  "add",
			event: shellies.Event{Kind: shellies.EventAdd, DeviceID: "shellyplus1-aa", Device: testDevice{}},
			want:  []string{"12:30:45", "+ add", "shellyplus1-aa", "SNSW-001X16EU"},
		},
		{
			name:  "error",
			event: shellies.Event{Kind: shellies.EventError, DeviceID: "shellyplus1-aa", Err: errors.New("connection refused")},
			want:  []string{"✗ error", "connection refused"},
		},
		{
			name:  "exclude",
			event: shellies.Event{Kind: shellies.EventExclude, DeviceID: "shellyplus1-aa"},
			want:  []string{"exclude", "excluded by configuration"},
		},
		{
			name: "unknown",
			event: shellies.Event{
				Kind:        shellies.EventUnknown,
				DeviceID:    "shellyfoo-bb",
				Model:       "XYZ-1",
				Identifiers: device.Identifiers{Address: "10.0.0.9"},
			},
			want: []string{"? unknown", "XYZ-1 at 10.0.0.9"},
		},
		{
			name:  "unknown without model",
			event: shellies.Event{Kind: shellies.EventUnknown, DeviceID: "shellyfoo-bb"},
			want:  []string{"unidentified model"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderEvent(tt.event, at)
			if strings.Contains(got, "\n") {
				t.Errorf("RenderEvent() = %q, want a single line", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("RenderEvent() = %q, want it to contain %q", got, w)
				}
			}
		})
	}
}

func TestRenderDevices(t *testing.T) {
	if got := RenderDevices(nil); !strings.Contains(got, "No devices found") {
		t.Errorf("RenderDevices(nil) = %q", got)
	}

	got := RenderDevices([]*discovery.Entry{
		{DeviceID: "shellyplus1-aa", Hostname: "ShellyPlus1-AA.local.", IP: "10.0.0.5", Port: 80, Gen: 2},
		{DeviceID: "shellypro4pm-bb", Hostname: "ShellyPro4PM-BB.local.", IP: "10.0.0.6", Port: 8080, Gen: 3},
	})

	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("RenderDevices() = %d lines, want 3:\n%s", len(lines), got)
	}
	for _, w := range []string{"DEVICE ID", "shellyplus1-aa", "10.0.0.6:8080", "ShellyPro4PM-BB.local."} {
		if !strings.Contains(got, w) {
			t.Errorf("RenderDevices() missing %q:\n%s", w, got)
		}
	}
}

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Shellies", "shellies run",
		Param{"Server", ":8765"},
		Param{"mDNS", "enabled"},
	).SetWidth(80)

	got := h.String()
	for _, w := range []string{"SHELLIES", "shellies run", "Server:", ":8765", "mDNS:"} {
		if !strings.Contains(got, w) {
			t.Errorf("Render() missing %q:\n%s", w, got)
		}
	}
	if strings.Index(got, "Server:") > strings.Index(got, "mDNS:") {
		t.Errorf("Render() params out of order:\n%s", got)
	}
}

func TestGetTerminalWidth(t *testing.T) {
	w := GetTerminalWidth()
	if w < MinTerminalWidth || w > MaxContentWidth {
		t.Errorf("GetTerminalWidth() = %d, want within [%d, %d]", w, MinTerminalWidth, MaxContentWidth)
	}
}
