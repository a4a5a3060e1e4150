package build

import "github.com/pithecene-io/assay/types"

// OutcomeKind classifies a state machine transition.
type OutcomeKind int

const (
	// Continue means keep reading the stream.
	Continue OutcomeKind = iota
	// Success means the environment is ready; Transition.Environment is set.
	Success
	// Failure means the build failed; Transition.Reason may be set.
	Failure
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Transition is the result of accepting one event.
type Transition struct {
	Kind        OutcomeKind
	Environment types.EnvironmentHandle
	Reason      string
}

// IsTerminal returns true for Success and Failure.
func (t Transition) IsTerminal() bool {
	return t.Kind != Continue
}

// Machine tracks the current build phase and produces at most one
// terminal transition. After that, every Accept returns Continue and
// leaves the machine untouched.
type Machine struct {
	current     types.Phase
	terminal    *Transition
	events      int
	parseErrors int
}

// NewMachine creates a machine in the waiting phase.
func NewMachine() *Machine {
	return &Machine{current: types.PhaseWaiting}
}

// Accept folds one event into the machine.
func (m *Machine) Accept(ev types.PhaseEvent) Transition {
	if m.terminal != nil {
		return Transition{Kind: Continue}
	}

	m.events++
	m.current = ev.Phase

	switch ev.Phase {
	case types.PhaseReady:
		env, _ := ev.Environment()
		t := Transition{Kind: Success, Environment: env}
		m.terminal = &t
		return t
	case types.PhaseFailed:
		t := Transition{Kind: Failure, Reason: ev.Message}
		m.terminal = &t
		return t
	default:
		return Transition{Kind: Continue}
	}
}

// AcceptError records a malformed line. Always Continue.
func (m *Machine) AcceptError(_ *ParseError) Transition {
	if m.terminal == nil {
		m.parseErrors++
	}
	return Transition{Kind: Continue}
}

// Current returns the most recently accepted phase.
func (m *Machine) Current() types.Phase {
	return m.current
}

// Done returns true once a terminal transition has been produced.
func (m *Machine) Done() bool {
	return m.terminal != nil
}

// Terminal returns the terminal transition, if any.
func (m *Machine) Terminal() (Transition, bool) {
	if m.terminal == nil {
		return Transition{}, false
	}
	return *m.terminal, true
}

// Events returns the number of events accepted before termination.
func (m *Machine) Events() int {
	return m.events
}

// ParseErrors returns the number of parse errors seen before termination.
func (m *Machine) ParseErrors() int {
	return m.parseErrors
}
