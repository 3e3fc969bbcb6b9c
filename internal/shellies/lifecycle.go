package shellies

import (
	"context"

	"github.com/looplab/fsm"
)

// State is where an identity is in the discovery lifecycle.
type State string

const (
	StateUnknown    State = "unknown"
	StatePending    State = "pending"
	StateRegistered State = "registered"
	StateIgnored    State = "ignored"
)

const (
	eventDiscover   = "discover"
	eventIgnore     = "ignore"
	eventFail       = "fail"
	eventAdd        = "add"
	eventRemove     = "remove"
	eventReconsider = "reconsider"
)

// newLifecycle returns the state machine of one identity:
//
//	unknown --discover--> pending --ignore--> ignored --reconsider--> unknown
//	pending --fail--> unknown
//	unknown|pending|ignored --add--> registered --remove--> unknown
func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		string(StateUnknown),
		fsm.Events{
			{Name: eventDiscover, Src: []string{string(StateUnknown)}, Dst: string(StatePending)},
			{Name: eventIgnore, Src: []string{string(StatePending)}, Dst: string(StateIgnored)},
			{Name: eventFail, Src: []string{string(StatePending)}, Dst: string(StateUnknown)},
			{
				Name: eventAdd,
				Src:  []string{string(StateUnknown), string(StatePending), string(StateIgnored)},
				Dst:  string(StateRegistered),
			},
			{Name: eventRemove, Src: []string{string(StateRegistered)}, Dst: string(StateUnknown)},
			{Name: eventReconsider, Src: []string{string(StateIgnored)}, Dst: string(StateUnknown)},
		},
		fsm.Callbacks{},
	)
}

// lifecycles tracks the state machines of identities that are not unknown.
// Callers hold the registry lock.
type lifecycles map[string]*fsm.FSM

func (l lifecycles) state(id string) State {
	if f, ok := l[id]; ok {
		return State(f.Current())
	}
	return StateUnknown
}

// fire applies event to id and reports whether the transition happened.
func (l lifecycles) fire(id, event string) bool {
	f, ok := l[id]
	if !ok {
		f = newLifecycle()
	}
	if err := f.Event(context.Background(), event); err != nil {
		return false
	}
	if State(f.Current()) == StateUnknown {
		delete(l, id)
	} else {
		l[id] = f
	}
	return true
}
