package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/viant/movegate/internal/clock"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/approval"
	"github.com/viant/movegate/stats"
)

// RequestMovement asks the arbiter to approve a movement. It fails with
// approval.ErrRequestPending, without sending anything, when the entity
// already has a pending request, and with ErrApprovalNotRequired when the
// caller may simply move.
func (s *Service) RequestMovement(ctx context.Context, request *model.MovementRequest) error {
	if s.isArbiter() {
		return ErrNotRequester
	}
	switch err := s.Authorize(ctx); {
	case err == nil:
		return ErrApprovalNotRequired
	case !errors.Is(err, ErrApprovalRequired):
		return err
	}
	if request == nil {
		return model.ErrInvalidRequest
	}
	request = request.Clone()
	if request.RequesterID == "" {
		request.RequesterID = s.participant.ID
	}
	if request.RequesterID != s.participant.ID {
		return ErrNotOwner
	}
	if request.RequesterName == "" {
		request.RequesterName = s.participant.Name
	}
	if request.ChannelName == "" {
		request.ChannelName = s.participant.ID
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = clock.Now()
	}
	if err := request.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry.Has(ctx, request.EntityID) {
		return s.rejectDuplicate(ctx, request.EntityID)
	}
	if _, err := s.machine.Submit(request.EntityID); err != nil {
		return s.rejectDuplicate(ctx, request.EntityID)
	}
	s.own[request.EntityID] = request
	s.drawPreview(ctx, request)

	msg := model.NewMessage(model.TypeRequestMovement, s.participant)
	msg.Request = request.Clone()
	s.publish(ctx, msg)

	s.stats.Update(stats.Delta{Submitted: 1})
	s.notify(ctx, LevelInfo, NoticeRequestSent, request.EntityID, "Movement request sent for approval.")
	s.indicator.SetPending(true)
	return nil
}

func (s *Service) rejectDuplicate(ctx context.Context, entityID string) error {
	s.stats.Update(stats.Delta{Rejected: 1})
	s.notify(ctx, LevelWarn, NoticePendingRequest, entityID, "A movement request for %s is already pending.", entityID)
	return fmt.Errorf("%w: %s", approval.ErrRequestPending, entityID)
}

// CancelRequest withdraws this participant's pending request for entityID.
// Without a pending request it does nothing.
func (s *Service) CancelRequest(ctx context.Context, entityID string) error {
	if s.isArbiter() {
		return ErrNotRequester
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	request := s.own[entityID]
	if request == nil {
		entry, err := s.registry.Get(ctx, entityID)
		if err != nil {
			return err
		}
		request = entry
	}
	if request == nil {
		s.refreshIndicator(ctx)
		return nil
	}
	if request.RequesterID != s.participant.ID {
		return ErrNotOwner
	}
	s.withdraw(ctx, request)
	s.refreshIndicator(ctx)
	return nil
}

// CancelOwn withdraws every pending request of this participant and returns
// the affected entities.
func (s *Service) CancelOwn(ctx context.Context) ([]string, error) {
	if s.isArbiter() {
		return nil, ErrNotRequester
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []string
	for _, request := range s.pendingRequests(ctx) {
		if request.RequesterID != s.participant.ID {
			continue
		}
		s.withdraw(ctx, request)
		ret = append(ret, request.EntityID)
	}
	s.refreshIndicator(ctx)
	return ret, nil
}

func (s *Service) withdraw(ctx context.Context, request *model.MovementRequest) {
	s.forget(ctx, request.EntityID)
	if _, err := s.machine.Resolve(request.EntityID, model.StateCancelled, "cancelled by requester"); err != nil {
		log.Printf("movegate: %v", err)
	}
	msg := model.NewMessage(model.TypeCancelMovementRequest, s.participant)
	msg.Cancel = request.Cancellation()
	s.publish(ctx, msg)
	s.notify(ctx, LevelInfo, NoticeRequestCancelled, request.EntityID, "Movement request cancelled.")
}

// forget drops local traces of a request: mirror entry, own record, preview.
func (s *Service) forget(ctx context.Context, entityID string) {
	if _, err := s.registry.Remove(ctx, entityID); err != nil {
		log.Printf("movegate: %v", err)
	}
	delete(s.own, entityID)
	s.clearPreview(ctx, entityID)
}

func (s *Service) onApproved(ctx context.Context, msg *model.Message) error {
	return s.onResolution(ctx, msg, model.VerdictApprove)
}

func (s *Service) onDenied(ctx context.Context, msg *model.Message) error {
	return s.onResolution(ctx, msg, model.VerdictDeny)
}

func (s *Service) onResolution(ctx context.Context, msg *model.Message, verdict model.Verdict) error {
	request := msg.Request
	if err := request.Validate(); err != nil {
		return err
	}
	entityID := request.EntityID
	if own := s.own[entityID]; own != nil && own.RequesterID != request.RequesterID {
		s.supersede(ctx, entityID)
	}
	tracked := s.machine.State(entityID) == model.StateRequested || s.own[entityID] != nil || s.registry.Has(ctx, entityID)
	if !tracked && !s.policy.AppliesStale() {
		return nil
	}
	s.forget(ctx, entityID)
	if _, err := s.machine.Resolve(entityID, verdict.State(), "decided by arbiter"); err != nil {
		return err
	}
	defer s.refreshIndicator(ctx)
	if request.RequesterID != s.participant.ID {
		return nil
	}
	if verdict == model.VerdictDeny {
		s.notify(ctx, LevelWarn, NoticeMovementDenied, entityID, "Movement request denied.")
		return nil
	}
	if !s.controller.Controls(entityID) {
		return nil
	}
	s.notify(ctx, LevelInfo, NoticeMovementApproved, entityID, "Movement request approved.")
	s.startMovement(context.WithoutCancel(ctx), request.Clone())
	return nil
}

// startMovement walks the path leg by leg outside the service lock.
func (s *Service) startMovement(ctx context.Context, request *model.MovementRequest) {
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		for _, point := range request.Path() {
			if err := s.executor.MoveTo(ctx, request.EntityID, point); err != nil {
				log.Printf("movegate: movement of %s stopped at %v: %v", request.EntityID, point, err)
				s.mu.Lock()
				s.notify(ctx, LevelError, NoticeMovementFailed, request.EntityID, "Movement of %s failed.", request.EntityID)
				s.mu.Unlock()
				return
			}
		}
		s.stats.Update(stats.Delta{Moves: 1})
	}()
}

func (s *Service) onCancelAsRequester(ctx context.Context, msg *model.Message) error {
	cancel := msg.Cancel
	if cancel == nil || cancel.EntityID == "" {
		return nil
	}
	if msg.SenderRole == model.RoleRequester && msg.SenderID != cancel.RequesterID {
		return fmt.Errorf("%w: %s cannot cancel %s", ErrNotOwner, msg.SenderID, cancel.EntityID)
	}
	entityID := cancel.EntityID
	entry, err := s.registry.Get(ctx, entityID)
	if err != nil {
		return err
	}
	own := s.own[entityID]
	switch {
	case entry == nil && own == nil:
		return nil
	case entry != nil && entry.RequesterID != cancel.RequesterID:
		return nil
	case entry == nil && own.RequesterID != cancel.RequesterID:
		return nil
	}
	s.forget(ctx, entityID)
	transition, err := s.machine.Resolve(entityID, model.StateCancelled, "cancelled")
	if err != nil {
		return err
	}
	if transition != nil && msg.SenderRole == model.RoleArbiter {
		s.notify(ctx, LevelWarn, NoticeRequestCancelled, entityID, "Movement request for %s was cancelled.", entityID)
	}
	s.refreshIndicator(ctx)
	return nil
}

func (s *Service) onUpdatePendingRequests(ctx context.Context, msg *model.Message) error {
	fresh := s.registry.Accepts(msg.Updates)
	changes, err := s.registry.ApplyRemoteDelta(ctx, msg.Updates)
	if err != nil {
		return err
	}
	if fresh && msg.Updates.Enabled != nil {
		s.adoptFlag(ctx, *msg.Updates.Enabled)
	}
	for _, change := range changes {
		switch {
		case change.Removed():
			s.clearPreview(ctx, change.EntityID)
			if s.own[change.EntityID] == nil {
				continue
			}
			// the arbiter no longer knows this request, so no decision will come
			delete(s.own, change.EntityID)
			if transition, _ := s.machine.Resolve(change.EntityID, model.StateCancelled, "withdrawn by arbiter"); transition != nil {
				s.notify(ctx, LevelWarn, NoticeRequestCancelled, change.EntityID, "Movement request for %s was cancelled.", change.EntityID)
			}
		case change.Added():
			if own := s.own[change.EntityID]; own != nil && own.RequesterID != change.Current.RequesterID {
				s.supersede(ctx, change.EntityID)
			}
			s.drawPreview(ctx, change.Current)
			if change.Current.RequesterID == s.participant.ID && s.own[change.EntityID] == nil {
				s.own[change.EntityID] = change.Current.Clone()
				s.machine.Observe(change.EntityID)
			}
		}
	}
	s.refreshIndicator(ctx)
	return nil
}

func (s *Service) onRequestCleanup(ctx context.Context, msg *model.Message) error {
	if msg.Updates != nil {
		if _, err := s.registry.ApplyRemoteDelta(ctx, msg.Updates); err != nil {
			return err
		}
	}
	if _, err := s.registry.Clear(ctx); err != nil {
		return err
	}
	s.own = make(map[string]*model.MovementRequest)
	s.clearAllPreviews(ctx)
	s.dismissAll(ctx)
	s.machine.Reset("approval disabled")
	s.indicator.SetPending(false)
	s.adoptFlag(ctx, false)
	return nil
}

// supersede drops this participant's submission for entityID after the
// arbiter kept another requester's request for the same entity.
func (s *Service) supersede(ctx context.Context, entityID string) {
	delete(s.own, entityID)
	s.clearPreview(ctx, entityID)
	if transition, _ := s.machine.Resolve(entityID, model.StateCancelled, "another request is pending"); transition != nil {
		s.stats.Update(stats.Delta{Rejected: 1})
		s.notify(ctx, LevelWarn, NoticePendingRequest, entityID, "A movement request for %s is already pending.", entityID)
	}
}

// adoptFlag stores the arbiter's "approval required" flag locally.
func (s *Service) adoptFlag(ctx context.Context, enabled bool) {
	if err := s.flag.Set(ctx, enabled); err != nil {
		log.Printf("movegate: failed to store approval flag: %v", err)
	}
	s.indicator.SetEnabled(enabled)
}

// refreshIndicator shows the pending indicator while this participant has
// any request awaiting a decision.
func (s *Service) refreshIndicator(ctx context.Context) {
	if s.isArbiter() {
		return
	}
	for _, request := range s.pendingRequests(ctx) {
		if request.RequesterID == s.participant.ID {
			s.indicator.SetPending(true)
			return
		}
	}
	s.indicator.SetPending(false)
}

// pendingRequests merges the registry with submissions the arbiter has not
// acknowledged yet.
func (s *Service) pendingRequests(ctx context.Context) []*model.MovementRequest {
	ret, err := s.registry.All(ctx)
	if err != nil {
		log.Printf("movegate: %v", err)
	}
	known := make(map[string]bool, len(ret))
	for _, request := range ret {
		known[request.EntityID] = true
	}
	for entityID, request := range s.own {
		if !known[entityID] {
			ret = append(ret, request.Clone())
		}
	}
	return ret
}
