package coordinator

import (
	"context"
	"fmt"
	"log"

	"github.com/viant/movegate/model"
	"github.com/viant/movegate/stats"
)

// Approve approves the pending request for entityID. Without a pending
// request it does nothing.
func (s *Service) Approve(ctx context.Context, entityID string) error {
	return s.Decide(ctx, entityID, model.VerdictApprove)
}

// Deny denies the pending request for entityID. Without a pending request it
// does nothing.
func (s *Service) Deny(ctx context.Context, entityID string) error {
	return s.Decide(ctx, entityID, model.VerdictDeny)
}

// Decide applies the arbiter's verdict.
func (s *Service) Decide(ctx context.Context, entityID string, verdict model.Verdict) error {
	if !s.isArbiter() {
		return ErrNotArbiter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decide(ctx, entityID, verdict)
}

// SetEnabled persists the "approval required" flag and broadcasts it to every
// client. Turning it off cancels every pending request on every client.
func (s *Service) SetEnabled(ctx context.Context, enabled bool) error {
	if !s.isArbiter() {
		return ErrNotArbiter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flag.Set(ctx, enabled); err != nil {
		return fmt.Errorf("failed to store approval flag: %w", err)
	}
	s.indicator.SetEnabled(enabled)
	if enabled {
		s.resync(ctx)
		return nil
	}
	return s.cleanup(ctx)
}

// Toggle flips the flag and returns its new value.
func (s *Service) Toggle(ctx context.Context) (bool, error) {
	enabled, err := s.Enabled(ctx)
	if err != nil {
		return false, err
	}
	return !enabled, s.SetEnabled(ctx, !enabled)
}

// Resync broadcasts the full registry so that every mirror converges.
func (s *Service) Resync(ctx context.Context) error {
	if !s.isArbiter() {
		return ErrNotArbiter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resync(ctx)
	return nil
}

func (s *Service) resync(ctx context.Context) {
	updates, err := s.registry.Snapshot(ctx)
	if err != nil {
		log.Printf("movegate: failed to snapshot registry: %v", err)
		return
	}
	enabled, err := s.flag.Enabled(ctx)
	if err != nil {
		log.Printf("movegate: failed to read approval flag: %v", err)
	} else {
		updates.Enabled = &enabled
	}
	msg := model.NewMessage(model.TypeUpdatePendingRequests, s.participant)
	msg.Updates = updates
	s.publish(ctx, msg)
}

func (s *Service) onRequestMovement(ctx context.Context, msg *model.Message) error {
	request := msg.Request
	if err := request.Validate(); err != nil {
		return err
	}
	if request.RequesterID != msg.SenderID {
		return fmt.Errorf("%w: %s requested on behalf of %s", ErrNotOwner, msg.SenderID, request.RequesterID)
	}
	s.stats.Update(stats.Delta{Received: 1})
	if s.registry.Has(ctx, request.EntityID) {
		s.stats.Update(stats.Delta{Rejected: 1})
		log.Printf("movegate: rejected duplicate request for %s from %s", request.EntityID, request.RequesterID)
		return nil
	}
	if err := s.registry.Put(ctx, request); err != nil {
		return err
	}
	s.machine.Observe(request.EntityID)
	s.drawPreview(ctx, request)
	if verdict, ok := s.policy.Decide(request); ok {
		return s.decide(ctx, request.EntityID, verdict)
	}
	s.present(ctx, request)
	return nil
}

func (s *Service) onCancelAsArbiter(ctx context.Context, msg *model.Message) error {
	cancel := msg.Cancel
	if cancel == nil || cancel.EntityID == "" {
		return nil
	}
	entry, err := s.registry.Get(ctx, cancel.EntityID)
	if err != nil || entry == nil {
		return err
	}
	if entry.RequesterID != msg.SenderID {
		return fmt.Errorf("%w: %s cannot cancel %s", ErrNotOwner, msg.SenderID, cancel.EntityID)
	}
	if _, err = s.registry.Remove(ctx, entry.EntityID); err != nil {
		return err
	}
	s.dismiss(ctx, entry.EntityID)
	s.clearPreview(ctx, entry.EntityID)
	if _, err = s.machine.Resolve(entry.EntityID, model.StateCancelled, "cancelled by requester"); err != nil {
		return err
	}
	name := cancel.Name
	if name == "" {
		name = entry.RequesterName
	}
	s.notify(ctx, LevelInfo, NoticeRequestCancelledByUser, entry.EntityID, "%s cancelled the movement request for %s.", displayName(name, entry.RequesterID), entry.EntityID)

	echo := model.NewMessage(model.TypeCancelMovementRequest, s.participant)
	echo.Cancel = entry.Cancellation()
	echo.Cancel.Name = name
	s.publish(ctx, echo)
	return nil
}

func (s *Service) onParticipantJoined(ctx context.Context, _ *model.Message) error {
	s.resync(ctx)
	return nil
}

// decide broadcasts the verdict first so that requesters still hold the
// mirror entry when they process it, then removes the entry.
func (s *Service) decide(ctx context.Context, entityID string, verdict model.Verdict) error {
	entry, err := s.registry.Get(ctx, entityID)
	if err != nil || entry == nil {
		return err
	}
	messageType := model.TypeMovementDenied
	if verdict == model.VerdictApprove {
		messageType = model.TypeMovementApproved
	}
	msg := model.NewMessage(messageType, s.participant)
	msg.Request = entry
	s.publish(ctx, msg)

	if _, err = s.registry.Remove(ctx, entityID); err != nil {
		return err
	}
	s.dismiss(ctx, entityID)
	s.clearPreview(ctx, entityID)
	_, err = s.machine.Resolve(entityID, verdict.State(), "decided by arbiter")
	return err
}

func (s *Service) cleanup(ctx context.Context) error {
	if _, err := s.registry.Clear(ctx); err != nil {
		return err
	}
	s.dismissAll(ctx)
	s.clearAllPreviews(ctx)
	s.machine.Reset("approval disabled")
	msg := model.NewMessage(model.TypeRequestCleanup, s.participant)
	if updates, err := s.registry.Snapshot(ctx); err == nil {
		disabled := false
		updates.Enabled = &disabled
		msg.Updates = updates
	}
	s.publish(ctx, msg)
	return nil
}

// present opens at most one decision surface per entity.
func (s *Service) present(ctx context.Context, request *model.MovementRequest) {
	entityID := request.EntityID
	if _, ok := s.surfaces[entityID]; ok {
		return
	}
	s.surfaceSeq++
	token := s.surfaceSeq
	s.surfaces[entityID] = token
	resolve := func(verdict model.Verdict) {
		s.async.Add(1)
		go func() {
			defer s.async.Done()
			s.resolveSurface(context.WithoutCancel(ctx), entityID, token, verdict)
		}()
	}
	if err := s.presenter.Present(ctx, request.Clone(), resolve); err != nil {
		delete(s.surfaces, entityID)
		log.Printf("movegate: failed to present request for %s: %v", entityID, err)
	}
}

// resolveSurface applies a verdict unless the surface was dismissed or
// replaced in the meantime.
func (s *Service) resolveSurface(ctx context.Context, entityID string, token uint64, verdict model.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.surfaces[entityID]; !ok || current != token {
		return
	}
	delete(s.surfaces, entityID)
	if err := s.decide(ctx, entityID, verdict); err != nil {
		log.Printf("movegate: failed to apply %s for %s: %v", verdict, entityID, err)
	}
}

func (s *Service) dismiss(ctx context.Context, entityID string) {
	if _, ok := s.surfaces[entityID]; !ok {
		return
	}
	delete(s.surfaces, entityID)
	if err := s.presenter.Dismiss(ctx, entityID); err != nil {
		log.Printf("movegate: failed to dismiss decision for %s: %v", entityID, err)
	}
}

func (s *Service) dismissAll(ctx context.Context) {
	for entityID := range s.surfaces {
		s.dismiss(ctx, entityID)
	}
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
