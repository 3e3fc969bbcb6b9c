package shellies

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/device"
	"github.com/Xatter/shellies-ng/internal/logging"
)

// ErrDuplicateDevice is returned when a device with the same ID is already
// registered.
var ErrDuplicateDevice = errors.New("shellies: device already registered")

// Registry maps device IDs to live devices. Registered, pending and ignored
// identities share one lock so that check-and-insert is atomic.
//
// Add and Delete hold a commit lock from the state change until every
// observer has returned, so observers of one identity see add and remove in
// commit order and read the state the event describes. Observers may call
// read methods (Has, Get, Len, iterators). They must not call Add, Delete or
// Clear on the same goroutine; that deadlocks. Hand such work to another
// goroutine, which proceeds once the current notification finishes.
type Registry struct {
	*Publisher

	commitMu sync.Mutex

	mu         sync.Mutex
	devices    map[device.DeviceID]device.Device
	order      []device.DeviceID
	lifecycles lifecycles
}

// NewRegistry creates an empty registry with its own Publisher.
func NewRegistry() *Registry {
	return &Registry{
		Publisher:  NewPublisher(),
		devices:    make(map[device.DeviceID]device.Device),
		lifecycles: make(lifecycles),
	}
}

// Add registers d and publishes add. It fails with ErrDuplicateDevice if the
// ID is taken. Adding an identity that discovery ignored is allowed.
func (r *Registry) Add(d device.Device) error {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if err := r.insert(d); err != nil {
		return err
	}
	r.emitAdd(d)
	return nil
}

func (r *Registry) insert(d device.Device) error {
	id := d.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, id)
	}
	r.devices[id] = d
	r.order = append(r.order, id)
	r.lifecycles.fire(string(id), eventAdd)
	return nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id device.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	return ok
}

// HasDevice reports whether the identity of d is registered.
func (r *Registry) HasDevice(d device.Device) bool {
	return r.Has(d.ID())
}

// Get returns the device registered under id.
func (r *Registry) Get(id device.DeviceID) (device.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	return d, ok
}

// Delete removes id and publishes remove. It reports whether a device was
// removed. The device's handler is not closed.
func (r *Registry) Delete(id device.DeviceID) bool {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	d, ok := r.take(id)
	if ok {
		r.emitRemove(d)
	}
	return ok
}

// DeleteDevice removes the identity of d.
func (r *Registry) DeleteDevice(d device.Device) bool {
	return r.Delete(d.ID())
}

func (r *Registry) take(id device.DeviceID) (device.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	delete(r.devices, id)
	r.order = slices.DeleteFunc(r.order, func(o device.DeviceID) bool { return o == id })
	r.lifecycles.fire(string(id), eventRemove)
	return d, true
}

// Clear removes every device, publishing remove once per device.
func (r *Registry) Clear() {
	for _, id := range r.snapshotIDs() {
		r.Delete(id)
	}
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// ForEach calls fn for every device in registration order.
func (r *Registry) ForEach(fn func(device.Device)) {
	for _, d := range r.snapshot() {
		fn(d)
	}
}

// All iterates over the devices registered when iteration starts.
func (r *Registry) All() iter.Seq2[device.DeviceID, device.Device] {
	return func(yield func(device.DeviceID, device.Device) bool) {
		for _, d := range r.snapshot() {
			if !yield(d.ID(), d) {
				return
			}
		}
	}
}

// IDs iterates over the registered IDs.
func (r *Registry) IDs() iter.Seq[device.DeviceID] {
	return func(yield func(device.DeviceID) bool) {
		for _, id := range r.snapshotIDs() {
			if !yield(id) {
				return
			}
		}
	}
}

// Devices iterates over the registered devices.
func (r *Registry) Devices() iter.Seq[device.Device] {
	return func(yield func(device.Device) bool) {
		for _, d := range r.snapshot() {
			if !yield(d) {
				return
			}
		}
	}
}

func (r *Registry) snapshot() []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

func (r *Registry) snapshotIDs() []device.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// State returns the lifecycle state of id.
func (r *Registry) State(id device.DeviceID) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifecycles.state(string(id))
}

// beginPending marks id pending unless it is already pending, registered or
// ignored. It is the only deduplication of discovery events.
func (r *Registry) beginPending(id device.DeviceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifecycles.fire(string(id), eventDiscover)
}

// ignore moves a pending id to ignored. It fails if an explicit Add took
// the identity over in the meantime.
func (r *Registry) ignore(id device.DeviceID) bool {
	return r.transition(id, eventIgnore)
}

// abandon returns a pending id to unknown so a later discovery retries it.
func (r *Registry) abandon(id device.DeviceID) {
	r.transition(id, eventFail)
}

// reconsider returns an ignored id to unknown.
func (r *Registry) reconsider(id device.DeviceID) bool {
	return r.transition(id, eventReconsider)
}

func (r *Registry) ignoredIDs() []device.DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []device.DeviceID
	for id, f := range r.lifecycles {
		if State(f.Current()) == StateIgnored {
			ids = append(ids, device.DeviceID(id))
		}
	}
	return ids
}

func (r *Registry) transition(id device.DeviceID, event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lifecycles.fire(string(id), event) {
		logging.Debug("Lifecycle transition skipped",
			logging.DeviceField(string(id)),
			zap.String("event", event),
			zap.String("state", string(r.lifecycles.state(string(id)))),
		)
		return false
	}
	return true
}
