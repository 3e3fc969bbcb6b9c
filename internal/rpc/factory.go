package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/options"
	"go.uber.org/zap"
)

// Factory builds handlers for discovered devices.
type Factory struct {
	opts WebSocketOptions

	mu       sync.RWMutex
	acceptor Acceptor
}

// NewFactory creates a factory. acceptor may be nil when no outbound server
// is running; see SetAcceptor.
func NewFactory(opts WebSocketOptions, acceptor Acceptor) *Factory {
	return &Factory{
		opts:     opts.withDefaults(),
		acceptor: acceptor,
	}
}

// SetAcceptor sets (or clears) the outbound server used for
// ProtocolOutboundWebSocket. Handlers created earlier are not affected.
func (f *Factory) SetAcceptor(a Acceptor) {
	f.mu.Lock()
	f.acceptor = a
	f.mu.Unlock()
}

// Options returns the effective WebSocket options.
func (f *Factory) Options() WebSocketOptions {
	return f.opts
}

// Create builds a handler for deviceID. With no protocol configured, a device
// with an address gets a direct WebSocket and one without an address is
// expected to connect to the outbound server.
func (f *Factory) Create(deviceID, address string, opts options.DeviceOptions) (Handler, error) {
	f.mu.RLock()
	acceptor := f.acceptor
	f.mu.RUnlock()

	protocol := opts.Protocol
	if protocol == options.ProtocolDefault {
		protocol = options.ProtocolWebSocket
		if address == "" && acceptor != nil {
			protocol = options.ProtocolOutboundWebSocket
		}
	}

	switch protocol {
	case options.ProtocolWebSocket:
		if address == "" {
			return nil, fmt.Errorf("%w: no address for %s", ErrConfiguration, deviceID)
		}
		logging.Debug("Creating WebSocket handler",
			logging.DeviceField(deviceID),
			zap.String("address", address),
		)
		return NewWebSocketHandler(deviceID, address, opts.Password, f.opts), nil

	case options.ProtocolOutboundWebSocket:
		if acceptor == nil {
			return nil, fmt.Errorf("%w: outbound WebSocket requested for %s but no server is configured",
				ErrConfiguration, deviceID)
		}
		logging.Debug("Creating outbound WebSocket handler", logging.DeviceField(deviceID))
		return NewOutboundHandler(deviceID, opts.Password, acceptor, f.opts), nil
	}

	return nil, fmt.Errorf("%w: unsupported protocol %q for %s", ErrConfiguration, protocol, deviceID)
}

// DeviceInfo is the result of Shelly.GetDeviceInfo.
type DeviceInfo struct {
	ID         string `json:"id"`
	MAC        string `json:"mac"`
	Model      string `json:"model"`
	Gen        int    `json:"gen"`
	FirmwareID string `json:"fw_id"`
	Version    string `json:"ver"`
	App        string `json:"app"`
	AuthEnable bool   `json:"auth_en"`
}

// GetDeviceInfo asks the device for its identity.
func GetDeviceInfo(ctx context.Context, h Handler) (*DeviceInfo, error) {
	raw, err := h.Request(ctx, "Shelly.GetDeviceInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get device info: %w", err)
	}

	var info DeviceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode device info: %w", err)
	}
	return &info, nil
}
