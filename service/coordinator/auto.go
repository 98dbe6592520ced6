package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/viant/movegate/model"
)

// DecisionFunc decides a pending request.
type DecisionFunc func(request *model.MovementRequest) model.Verdict

// AutoDecider is a DecisionPresenter that answers every request with fn,
// after an optional delay. Dismissed requests are not answered.
type AutoDecider struct {
	fn    DecisionFunc
	delay time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewAutoDecider creates a headless presenter.
func NewAutoDecider(fn DecisionFunc, delay time.Duration) *AutoDecider {
	return &AutoDecider{fn: fn, delay: delay, pending: make(map[string]chan struct{})}
}

// AutoApprove approves every request.
func AutoApprove(delay time.Duration) *AutoDecider {
	return NewAutoDecider(func(*model.MovementRequest) model.Verdict { return model.VerdictApprove }, delay)
}

// AutoDeny denies every request.
func AutoDeny(delay time.Duration) *AutoDecider {
	return NewAutoDecider(func(*model.MovementRequest) model.Verdict { return model.VerdictDeny }, delay)
}

func (a *AutoDecider) Present(_ context.Context, request *model.MovementRequest, resolve func(model.Verdict)) error {
	if a.delay <= 0 {
		resolve(a.fn(request))
		return nil
	}
	dismissed := make(chan struct{})
	a.mu.Lock()
	a.pending[request.EntityID] = dismissed
	a.mu.Unlock()
	go func() {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-dismissed:
			return
		case <-timer.C:
		}
		a.mu.Lock()
		if a.pending[request.EntityID] == dismissed {
			delete(a.pending, request.EntityID)
		}
		a.mu.Unlock()
		resolve(a.fn(request))
	}()
	return nil
}

func (a *AutoDecider) Dismiss(_ context.Context, entityID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if dismissed, ok := a.pending[entityID]; ok {
		delete(a.pending, entityID)
		close(dismissed)
	}
	return nil
}
