package discovery

import (
	"sync"

	"github.com/Xatter/shellies-ng/internal/device"
)

// Handler receives discovered identifiers. It may be called from any
// goroutine, any number of times for the same device.
type Handler func(device.Identifiers)

// SubscriptionID identifies a subscription on a Discoverer.
type SubscriptionID uint64

// Discoverer is a source of discovered devices.
type Discoverer interface {
	Subscribe(h Handler) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

// Emitter implements Discoverer for embedding. The zero value is ready to use.
type Emitter struct {
	mu       sync.Mutex
	next     SubscriptionID
	handlers map[SubscriptionID]Handler
}

// Subscribe implements Discoverer.
func (e *Emitter) Subscribe(h Handler) SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[SubscriptionID]Handler)
	}
	e.next++
	e.handlers[e.next] = h
	return e.next
}

// Unsubscribe implements Discoverer.
func (e *Emitter) Unsubscribe(id SubscriptionID) {
	e.mu.Lock()
	delete(e.handlers, id)
	e.mu.Unlock()
}

// Emit passes ids to every subscriber.
func (e *Emitter) Emit(ids device.Identifiers) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ids)
	}
}

// Subscribers returns the number of active subscriptions.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
