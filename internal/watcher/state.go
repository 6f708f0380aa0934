package watcher

import (
	"fmt"
	"sync"
)

// State is a watch session state.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSucceeded
	StateFailed
	StateWatching
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// Trigger moves the session between states.
type Trigger int

const (
	TriggerStart Trigger = iota
	TriggerJobsOK
	TriggerJobFailed
	TriggerSettle
	TriggerChange
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerStart:
		return "start"
	case TriggerJobsOK:
		return "jobs ok"
	case TriggerJobFailed:
		return "job failed"
	case TriggerSettle:
		return "settle"
	case TriggerChange:
		return "change"
	default:
		return "unknown"
	}
}

var transitions = map[State]map[Trigger]State{
	StateIdle:      {TriggerStart: StateBuilding},
	StateBuilding:  {TriggerJobsOK: StateSucceeded, TriggerJobFailed: StateFailed, TriggerChange: StateBuilding},
	StateSucceeded: {TriggerSettle: StateWatching},
	StateFailed:    {TriggerSettle: StateWatching},
	StateWatching:  {TriggerChange: StateBuilding},
}

// Transition is a recorded state change.
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// Machine tracks the watch session state. It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	state    State
	observer func(Transition)
}

// NewMachine returns a machine in StateIdle. observer, if not nil, is
// called after every transition while the machine's lock is held.
func NewMachine(observer func(Transition)) *Machine {
	return &Machine{state: StateIdle, observer: observer}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies a trigger. Triggers not valid in the current state are
// rejected and leave the state unchanged.
func (m *Machine) Fire(t Trigger) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := transitions[m.state][t]
	if !ok {
		return m.state, fmt.Errorf("invalid transition: %s on %s", m.state, t)
	}
	tr := Transition{From: m.state, To: next, Trigger: t}
	m.state = next
	if m.observer != nil {
		m.observer(tr)
	}
	return next, nil
}
