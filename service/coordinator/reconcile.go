package coordinator

import (
	"context"
	"log"

	"github.com/viant/movegate/model"
)

// lockedCanceller exposes the service to the reconciler. Its methods expect
// the service lock to be held by the caller.
type lockedCanceller struct {
	s *Service
}

func (c lockedCanceller) Role() model.Role { return c.s.participant.Role }

func (c lockedCanceller) PendingRequests(ctx context.Context) []*model.MovementRequest {
	return c.s.pendingRequests(ctx)
}

func (c lockedCanceller) CancelPending(ctx context.Context, requests []*model.MovementRequest, reason string) error {
	s := c.s
	for _, request := range requests {
		entityID := request.EntityID
		if _, err := s.registry.Remove(ctx, entityID); err != nil {
			return err
		}
		if s.isArbiter() {
			s.dismiss(ctx, entityID)
		}
		delete(s.own, entityID)
		s.clearPreview(ctx, entityID)
		transition, err := s.machine.Resolve(entityID, model.StateCancelled, reason)
		if err != nil {
			return err
		}
		if transition != nil && request.RequesterID == s.participant.ID {
			s.notify(ctx, LevelWarn, NoticeRequestCancelled, entityID, "Movement request for %s was cancelled: %s.", entityID, reason)
		}
	}
	if !s.isArbiter() {
		s.refreshIndicator(ctx)
	} else {
		log.Printf("movegate: cancelled %d request(s): %s", len(requests), reason)
	}
	return nil
}
