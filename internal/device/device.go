package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/rpc"
)

// ErrUnrecognizedModel is returned by Construct for models it does not know.
var ErrUnrecognizedModel = errors.New("device: unrecognized model")

// Device is a registered device. The registry only relies on this interface.
type Device interface {
	ID() DeviceID
	Model() string
	Handler() rpc.Handler
}

// Loader is implemented by devices that can fetch their status and config.
type Loader interface {
	LoadStatus(ctx context.Context) error
	LoadConfig(ctx context.Context) error
}

// Constructor builds devices for the models it recognizes.
type Constructor interface {
	Recognizes(model string) bool
	Construct(ids Identifiers, h rpc.Handler) (Device, error)
}

// Shelly is a generic Gen2+ device. Components are kept as raw JSON keyed by
// component key ("switch:0", "sys", ...).
type Shelly struct {
	ids     Identifiers
	handler rpc.Handler
	info    ModelInfo

	mu     sync.RWMutex
	status map[string]json.RawMessage
	config map[string]json.RawMessage

	cancelNotify func()
}

// NewShelly wraps h as a device described by ids and info.
func NewShelly(ids Identifiers, info ModelInfo, h rpc.Handler) *Shelly {
	d := &Shelly{
		ids:     ids,
		handler: h,
		info:    info,
		status:  make(map[string]json.RawMessage),
		config:  make(map[string]json.RawMessage),
	}
	d.cancelNotify = h.OnNotification(d.handleNotification)
	return d
}

func (d *Shelly) ID() DeviceID { return d.ids.DeviceID }

func (d *Shelly) Model() string { return d.ids.Model }

func (d *Shelly) Handler() rpc.Handler { return d.handler }

// Identifiers returns the identifiers the device was constructed from.
func (d *Shelly) Identifiers() Identifiers { return d.ids }

// Name returns the catalog name of the model, e.g. "Shelly Plus 1".
func (d *Shelly) Name() string { return d.info.Name }

// LoadStatus fetches Shelly.GetStatus and replaces the cached status.
func (d *Shelly) LoadStatus(ctx context.Context) error {
	components, err := d.fetch(ctx, "Shelly.GetStatus")
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.status = components
	d.mu.Unlock()
	return nil
}

// LoadConfig fetches Shelly.GetConfig and replaces the cached config.
func (d *Shelly) LoadConfig(ctx context.Context) error {
	components, err := d.fetch(ctx, "Shelly.GetConfig")
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.config = components
	d.mu.Unlock()
	return nil
}

func (d *Shelly) fetch(ctx context.Context, method string) (map[string]json.RawMessage, error) {
	raw, err := d.handler.Request(ctx, method, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s from %s: %w", method, d.ids.DeviceID, err)
	}
	var components map[string]json.RawMessage
	if err := json.Unmarshal(raw, &components); err != nil {
		return nil, fmt.Errorf("failed to decode %s from %s: %w", method, d.ids.DeviceID, err)
	}
	return components, nil
}

// Status returns the cached status of one component.
func (d *Shelly) Status(component string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.status[component]
	return v, ok
}

// Config returns the cached config of one component.
func (d *Shelly) Config(component string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.config[component]
	return v, ok
}

// StatusSnapshot returns a copy of all cached component statuses.
func (d *Shelly) StatusSnapshot() map[string]json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.status)
}

// handleNotification merges status updates into the cache. NotifyStatus
// carries partial component objects; NotifyFullStatus replaces them.
func (d *Shelly) handleNotification(n rpc.Notification) {
	switch n.Method {
	case "NotifyStatus", "NotifyFullStatus":
	default:
		return
	}

	var params map[string]json.RawMessage
	if err := json.Unmarshal(n.Params, &params); err != nil {
		logging.Debug("Ignoring malformed status notification",
			logging.DeviceField(string(d.ids.DeviceID)),
			zap.Error(err),
		)
		return
	}
	delete(params, "ts")

	d.mu.Lock()
	defer d.mu.Unlock()
	for key, update := range params {
		if n.Method == "NotifyFullStatus" {
			d.status[key] = update
			continue
		}
		d.status[key] = mergeObjects(d.status[key], update)
	}
}

// mergeObjects overlays the top-level fields of update onto base.
func mergeObjects(base, update json.RawMessage) json.RawMessage {
	var b, u map[string]json.RawMessage
	if len(base) == 0 || json.Unmarshal(base, &b) != nil || json.Unmarshal(update, &u) != nil {
		return update
	}
	maps.Copy(b, u)
	merged, err := json.Marshal(b)
	if err != nil {
		return update
	}
	return merged
}

// Close stops listening for notifications and closes the handler.
func (d *Shelly) Close() error {
	d.cancelNotify()
	return d.handler.Close()
}
