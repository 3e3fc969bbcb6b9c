package shellies

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/device"
	"github.com/Xatter/shellies-ng/internal/logging"
)

// Subscription identifies a registered observer.
type Subscription uint64

type (
	AddHandler     func(device.Device)
	RemoveHandler  func(device.Device)
	ErrorHandler   func(id device.DeviceID, err error)
	ExcludeHandler func(id device.DeviceID)
	UnknownHandler func(id device.DeviceID, model string, ids device.Identifiers)
)

// Observable is the observer side of the registry's lifecycle events.
type Observable interface {
	OnAdd(fn AddHandler) Subscription
	OnRemove(fn RemoveHandler) Subscription
	OnError(fn ErrorHandler) Subscription
	OnExclude(fn ExcludeHandler) Subscription
	OnUnknown(fn UnknownHandler) Subscription
	Unsubscribe(s Subscription)
}

// Publisher fans lifecycle events out to observers. Observers run
// synchronously on the goroutine that caused the event, in subscription
// order. A panicking observer is logged and skipped.
type Publisher struct {
	mu      sync.Mutex
	next    Subscription
	add     map[Subscription]AddHandler
	remove  map[Subscription]RemoveHandler
	errs    map[Subscription]ErrorHandler
	exclude map[Subscription]ExcludeHandler
	unknown map[Subscription]UnknownHandler
}

// NewPublisher creates a publisher with no observers.
func NewPublisher() *Publisher {
	return &Publisher{
		add:     make(map[Subscription]AddHandler),
		remove:  make(map[Subscription]RemoveHandler),
		errs:    make(map[Subscription]ErrorHandler),
		exclude: make(map[Subscription]ExcludeHandler),
		unknown: make(map[Subscription]UnknownHandler),
	}
}

func subscribe[F any](p *Publisher, m map[Subscription]F, fn F) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	m[p.next] = fn
	return p.next
}

func snapshot[F any](p *Publisher, m map[Subscription]F) []F {
	p.mu.Lock()
	defer p.mu.Unlock()
	fns := make([]F, 0, len(m))
	for _, s := range slices.Sorted(maps.Keys(m)) {
		fns = append(fns, m[s])
	}
	return fns
}

func (p *Publisher) OnAdd(fn AddHandler) Subscription { return subscribe(p, p.add, fn) }

func (p *Publisher) OnRemove(fn RemoveHandler) Subscription { return subscribe(p, p.remove, fn) }

func (p *Publisher) OnError(fn ErrorHandler) Subscription { return subscribe(p, p.errs, fn) }

func (p *Publisher) OnExclude(fn ExcludeHandler) Subscription { return subscribe(p, p.exclude, fn) }

func (p *Publisher) OnUnknown(fn UnknownHandler) Subscription { return subscribe(p, p.unknown, fn) }

// Unsubscribe removes an observer. Unknown subscriptions are ignored.
func (p *Publisher) Unsubscribe(s Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.add, s)
	delete(p.remove, s)
	delete(p.errs, s)
	delete(p.exclude, s)
	delete(p.unknown, s)
}

func (p *Publisher) emitAdd(d device.Device) {
	for _, fn := range snapshot(p, p.add) {
		guard(EventAdd, d.ID(), func() { fn(d) })
	}
}

func (p *Publisher) emitRemove(d device.Device) {
	for _, fn := range snapshot(p, p.remove) {
		guard(EventRemove, d.ID(), func() { fn(d) })
	}
}

func (p *Publisher) emitError(id device.DeviceID, err error) {
	logging.Warn("Device error", logging.DeviceField(string(id)), zap.Error(err))
	for _, fn := range snapshot(p, p.errs) {
		guard(EventError, id, func() { fn(id, err) })
	}
}

func (p *Publisher) emitExclude(id device.DeviceID) {
	for _, fn := range snapshot(p, p.exclude) {
		guard(EventExclude, id, func() { fn(id) })
	}
}

func (p *Publisher) emitUnknown(id device.DeviceID, model string, ids device.Identifiers) {
	for _, fn := range snapshot(p, p.unknown) {
		guard(EventUnknown, id, func() { fn(id, model, ids) })
	}
}

func guard(kind EventKind, id device.DeviceID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Event observer panicked",
				zap.String("event", string(kind)),
				logging.DeviceField(string(id)),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

// EventKind names a lifecycle event.
type EventKind string

const (
	EventAdd     EventKind = "add"
	EventRemove  EventKind = "remove"
	EventError   EventKind = "error"
	EventExclude EventKind = "exclude"
	EventUnknown EventKind = "unknown"
)

// Event is a lifecycle event in a single value, for consumers that treat all
// kinds alike.
type Event struct {
	Kind     EventKind
	DeviceID device.DeviceID

	// Device is set for add and remove.
	Device device.Device
	// Model and Identifiers are set for unknown.
	Model       string
	Identifiers device.Identifiers
	// Err is set for error.
	Err error
}

// Watch subscribes fn to every event kind on o. The returned function
// removes all five subscriptions.
func Watch(o Observable, fn func(Event)) (cancel func()) {
	subs := []Subscription{
		o.OnAdd(func(d device.Device) {
			fn(Event{Kind: EventAdd, DeviceID: d.ID(), Device: d})
		}),
		o.OnRemove(func(d device.Device) {
			fn(Event{Kind: EventRemove, DeviceID: d.ID(), Device: d})
		}),
		o.OnError(func(id device.DeviceID, err error) {
			fn(Event{Kind: EventError, DeviceID: id, Err: err})
		}),
		o.OnExclude(func(id device.DeviceID) {
			fn(Event{Kind: EventExclude, DeviceID: id})
		}),
		o.OnUnknown(func(id device.DeviceID, model string, ids device.Identifiers) {
			fn(Event{Kind: EventUnknown, DeviceID: id, Model: model, Identifiers: ids})
		}),
	}
	return func() {
		for _, s := range subs {
			o.Unsubscribe(s)
		}
	}
}
