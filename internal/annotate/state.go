package annotate

import (
	"fmt"
	"sync"
)

// State is a run's position in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// event drives the run lifecycle.
type event string

const (
	eventLoad     event = "load"
	eventRecord   event = "record"
	eventFinalize event = "finalize"
	eventComplete event = "complete"
	eventFail     event = "fail"
	eventCancel   event = "cancel"
)

type edge struct {
	from State
	ev   event
}

// transitions is the complete lifecycle; anything not listed is rejected.
// There is no edge out of a terminal state.
var transitions = map[edge]State{
	{StateIdle, eventLoad}:           StateLoading,
	{StateLoading, eventRecord}:      StateRecording,
	{StateLoading, eventFail}:        StateFailed,
	{StateLoading, eventCancel}:      StateCancelled,
	{StateRecording, eventFinalize}:  StateFinalizing,
	{StateRecording, eventFail}:      StateFailed,
	{StateRecording, eventCancel}:    StateCancelled,
	{StateFinalizing, eventComplete}: StateDone,
	{StateFinalizing, eventFail}:     StateFailed,
	{StateFinalizing, eventCancel}:   StateCancelled,
}

// machine applies events atomically and notifies the observer of each move.
type machine struct {
	mu       sync.Mutex
	state    State
	observer func(from, to State)
}

func newMachine(observer func(from, to State)) *machine {
	return &machine{state: StateIdle, observer: observer}
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) fire(ev event) (State, error) {
	m.mu.Lock()
	from := m.state
	to, ok := transitions[edge{from, ev}]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("invalid transition: state=%s event=%s", from, ev)
	}
	m.state = to
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(from, to)
	}
	return to, nil
}
