// Package reconciler cancels requests that can no longer be resolved once a
// participant leaves the session.
package reconciler

import (
	"context"
	"log"

	"github.com/viant/movegate/model"
)

const (
	ReasonArbiterLeft   = "arbiter left the session"
	ReasonRequesterLeft = "requester left the session"
)

// Canceller is the part of a coordinator the reconciler drives.
type Canceller interface {
	// Role is the role of the local participant.
	Role() model.Role
	// PendingRequests lists every request the local participant tracks,
	// including its own submissions not yet acknowledged by the arbiter.
	PendingRequests(ctx context.Context) []*model.MovementRequest
	// CancelPending resolves the given requests as cancelled.
	CancelPending(ctx context.Context, requests []*model.MovementRequest, reason string) error
}

// Reconciler reacts to departures.
type Reconciler struct{}

// New creates a reconciler.
func New() *Reconciler { return &Reconciler{} }

// OnLeave cancels what departed leaves orphaned and returns the cancelled
// requests. When the arbiter leaves, every client cancels everything it
// tracks. When a requester leaves, only the arbiter acts, cancelling that
// requester's entries.
func (r *Reconciler) OnLeave(ctx context.Context, canceller Canceller, departed model.Participant) ([]*model.MovementRequest, error) {
	var orphaned []*model.MovementRequest
	var reason string
	switch {
	case departed.IsArbiter():
		orphaned = canceller.PendingRequests(ctx)
		reason = ReasonArbiterLeft
	case canceller.Role() == model.RoleArbiter:
		for _, request := range canceller.PendingRequests(ctx) {
			if request.RequesterID == departed.ID {
				orphaned = append(orphaned, request)
			}
		}
		reason = ReasonRequesterLeft
	}
	if len(orphaned) == 0 {
		return nil, nil
	}
	log.Printf("movegate: %s left, cancelling %d pending request(s)", departed.ID, len(orphaned))
	if err := canceller.CancelPending(ctx, orphaned, reason); err != nil {
		return nil, err
	}
	return orphaned, nil
}
