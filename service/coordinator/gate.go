package coordinator

import (
	"context"
	"fmt"

	"github.com/viant/movegate/internal/clock"
)

// Authorize reports whether the local participant may move entities
// directly. It returns ErrApprovalRequired when a move must go through
// RequestMovement.
func (s *Service) Authorize(ctx context.Context) error {
	if s.isArbiter() || s.policy.IsExempt(s.participant.ID) {
		return nil
	}
	enabled, err := s.flag.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read approval flag: %w", err)
	}
	if !enabled {
		return nil
	}
	return ErrApprovalRequired
}

// AuthorizeDrag guards free dragging. While approval is required it returns
// ErrMovementLocked and warns the user, at most once per lock warning interval.
func (s *Service) AuthorizeDrag(ctx context.Context) error {
	if err := s.Authorize(ctx); err != ErrApprovalRequired {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := clock.Now()
	interval := s.policy.LockWarningInterval
	if s.lastLockWarning.IsZero() || now.Sub(s.lastLockWarning) >= interval {
		s.lastLockWarning = now
		s.notify(ctx, LevelWarn, NoticeMovementLocked, "", "Movement requires approval. Use a movement request instead.")
	}
	return ErrMovementLocked
}
