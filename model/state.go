package model

import "time"

// State represents the approval state of a single entity.
type State string

const (
	StateIdle      State = "idle"
	StateRequested State = "requested"
	StateApproved  State = "approved"
	StateDenied    State = "denied"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the state resolves a request.
func (s State) IsTerminal() bool {
	switch s {
	case StateApproved, StateDenied, StateCancelled:
		return true
	}
	return false
}

// Verdict is the arbiter's answer on the decision surface.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictDeny    Verdict = "deny"
)

// State maps the verdict to the resolution it produces.
func (v Verdict) State() State {
	if v == VerdictApprove {
		return StateApproved
	}
	return StateDenied
}

// Transition records one state change of an entity.
type Transition struct {
	EntityID string    `json:"entityId"`
	From     State     `json:"from"`
	To       State     `json:"to"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}
