package approval

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/movegate/internal/clock"
	"github.com/viant/movegate/model"
)

var (
	// ErrRequestPending signals a duplicate submission for an entity already awaiting a decision.
	ErrRequestPending = errors.New("approval: request already pending")
	// ErrInvalidOutcome is returned when resolving to a non-terminal state.
	ErrInvalidOutcome = errors.New("approval: outcome must be approved, denied or cancelled")
)

// Listener observes every transition.
type Listener func(transition model.Transition)

// Machine tracks which entities are awaiting a decision. Entities without
// an entry are Idle.
type Machine struct {
	mu        sync.Mutex
	requested map[string]bool
	listeners []Listener
}

// New creates a machine.
func New(listeners ...Listener) *Machine {
	return &Machine{requested: make(map[string]bool), listeners: listeners}
}

// OnTransition registers a listener.
func (m *Machine) OnTransition(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Submit moves entityID from Idle to Requested; a pending entity is rejected
// with ErrRequestPending and left untouched.
func (m *Machine) Submit(entityID string) (*model.Transition, error) {
	m.mu.Lock()
	if m.requested[entityID] {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRequestPending, entityID)
	}
	m.requested[entityID] = true
	transition := newTransition(entityID, model.StateIdle, model.StateRequested, "submitted")
	listeners := m.listeners
	m.mu.Unlock()
	notify(listeners, transition)
	return transition, nil
}

// Observe records a request learnt from another participant. It returns nil
// when the entity was already Requested.
func (m *Machine) Observe(entityID string) *model.Transition {
	m.mu.Lock()
	if m.requested[entityID] {
		m.mu.Unlock()
		return nil
	}
	m.requested[entityID] = true
	transition := newTransition(entityID, model.StateIdle, model.StateRequested, "observed")
	listeners := m.listeners
	m.mu.Unlock()
	notify(listeners, transition)
	return transition
}

// Resolve moves a Requested entity to outcome and back to Idle. Resolving an
// entity that is not Requested is a no-op and returns a nil transition.
func (m *Machine) Resolve(entityID string, outcome model.State, reason string) (*model.Transition, error) {
	if !outcome.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}
	m.mu.Lock()
	if !m.requested[entityID] {
		m.mu.Unlock()
		return nil, nil
	}
	delete(m.requested, entityID)
	transition := newTransition(entityID, model.StateRequested, outcome, reason)
	listeners := m.listeners
	m.mu.Unlock()
	notify(listeners, transition)
	return transition, nil
}

// Reset cancels every Requested entity.
func (m *Machine) Reset(reason string) []model.Transition {
	m.mu.Lock()
	entities := m.pending()
	m.requested = make(map[string]bool)
	listeners := m.listeners
	m.mu.Unlock()

	ret := make([]model.Transition, 0, len(entities))
	for _, entityID := range entities {
		transition := newTransition(entityID, model.StateRequested, model.StateCancelled, reason)
		notify(listeners, transition)
		ret = append(ret, *transition)
	}
	return ret
}

// State returns the entity's current state.
func (m *Machine) State(entityID string) model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requested[entityID] {
		return model.StateRequested
	}
	return model.StateIdle
}

// Pending returns Requested entities ordered by ID.
func (m *Machine) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending()
}

func (m *Machine) pending() []string {
	ret := make([]string, 0, len(m.requested))
	for entityID := range m.requested {
		ret = append(ret, entityID)
	}
	sort.Strings(ret)
	return ret
}

func newTransition(entityID string, from, to model.State, reason string) *model.Transition {
	return &model.Transition{EntityID: entityID, From: from, To: to, Reason: reason, At: clock.Now()}
}

func notify(listeners []Listener, transition *model.Transition) {
	for _, listener := range listeners {
		listener(*transition)
	}
}
