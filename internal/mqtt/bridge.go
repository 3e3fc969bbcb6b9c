package mqtt

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/shellies"
)

// Publisher is the part of Client the bridge needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// eventPayload is the JSON body of an event message.
type eventPayload struct {
	Kind      string `json:"kind"`
	DeviceID  string `json:"device_id"`
	Model     string `json:"model,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	Address   string `json:"address,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Bridge republishes registry lifecycle events to MQTT.
type Bridge struct {
	pub    Publisher
	topics Topics
	now    func() time.Time

	mu     sync.Mutex
	cancel func()
}

// NewBridge creates a bridge publishing under prefix.
func NewBridge(pub Publisher, prefix string) *Bridge {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Bridge{
		pub:    pub,
		topics: Topics{Prefix: prefix},
		now:    time.Now,
	}
}

// Attach subscribes to o. A bridge is attached to at most one source;
// attaching again detaches from the previous one.
func (b *Bridge) Attach(o shellies.Observable) {
	cancel := shellies.Watch(o, b.handle)

	b.mu.Lock()
	prev := b.cancel
	b.cancel = cancel
	b.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Detach stops publishing.
func (b *Bridge) Detach() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (b *Bridge) handle(e shellies.Event) {
	payload := eventPayload{
		Kind:      string(e.Kind),
		DeviceID:  string(e.DeviceID),
		Model:     e.Model,
		Timestamp: b.now().UTC().Format(time.RFC3339),
	}
	if e.Device != nil {
		payload.Model = e.Device.Model()
		if h := e.Device.Handler(); h != nil {
			payload.Protocol = h.Protocol().String()
		}
	}
	if e.Kind == shellies.EventUnknown {
		payload.Address = e.Identifiers.Address
	}
	if e.Err != nil {
		payload.Error = e.Err.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to encode MQTT event", zap.Error(err))
		return
	}
	b.publish(b.topics.Event(e.Kind), data, false)

	switch e.Kind {
	case shellies.EventAdd:
		b.publish(b.topics.DeviceOnline(string(e.DeviceID)), []byte("true"), true)
	case shellies.EventRemove:
		b.publish(b.topics.DeviceOnline(string(e.DeviceID)), []byte("false"), true)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.pub.Publish(topic, payload, retained); err != nil {
		logging.Warn("Failed to publish MQTT message",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
