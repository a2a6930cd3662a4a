package orchestrator

import (
	"fmt"
)

// State is where a turn stands in the confirmation protocol.
type State string

const (
	StateAwaitingDecision     State = "awaiting_decision"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateResolved             State = "resolved"
)

// Event moves a turn between states.
type Event string

const (
	// EventVerdict is a bare yes/no answering a pending confirmation.
	EventVerdict Event = "verdict"
	// EventInferredVerdict is a bare yes/no answering a free-text prompt
	// recovered from the previous assistant message.
	EventInferredVerdict Event = "inferred_verdict"
	// EventMessage is any input the reasoning engine has to decide on.
	EventMessage         Event = "message"
	EventReply           Event = "reply"
	EventActionRequested Event = "action_requested"
)

var transitions = map[State]map[Event]State{
	StateAwaitingConfirmation: {
		EventVerdict: StateResolved,
		EventMessage: StateAwaitingDecision,
	},
	StateAwaitingDecision: {
		EventInferredVerdict: StateResolved,
		EventMessage:         StateAwaitingDecision,
		EventReply:           StateResolved,
		EventActionRequested: StateAwaitingConfirmation,
	},
}

// Machine tracks one turn. A turn starts awaiting confirmation when the
// session holds a pending confirmation and awaiting a decision otherwise.
type Machine struct {
	state State
	path  []State
}

// NewMachine returns a machine for a turn on a session with or without a
// pending confirmation.
func NewMachine(pending bool) *Machine {
	initial := StateAwaitingDecision
	if pending {
		initial = StateAwaitingConfirmation
	}
	return &Machine{state: initial, path: []State{initial}}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Path returns every state the turn has visited, in order.
func (m *Machine) Path() []State {
	return append([]State(nil), m.path...)
}

// Fire applies ev, rejecting events the current state does not accept.
func (m *Machine) Fire(ev Event) error {
	next, ok := transitions[m.state][ev]
	if !ok {
		return fmt.Errorf("orchestrator: event %q not allowed in state %q", ev, m.state)
	}
	m.state = next
	m.path = append(m.path, next)
	return nil
}

// Classify picks the event for an incoming user message. inferable is
// only consulted for a verdict with nothing pending.
func Classify(pending, verdict bool, inferable func() bool) Event {
	switch {
	case pending && verdict:
		return EventVerdict
	case !pending && verdict && inferable():
		return EventInferredVerdict
	default:
		return EventMessage
	}
}
