package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/movegate/internal/clock"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/policy"
	"github.com/viant/movegate/service/approval"
	"github.com/viant/movegate/service/dao/store"
	"github.com/viant/movegate/service/settings"
)

func TestService_DenyScenario(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester, WithController(ownController{"T1": true}))

	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 10, Y: 10}, model.Point{X: 0, Y: 0})))
	s.pump()
	assert.Equal(t, []string{"T1"}, arbiter.pendingIDs(t))
	assert.Equal(t, []string{"T1"}, requester.pendingIDs(t))
	assert.Equal(t, model.StateRequested, requester.State("T1"))
	pending, _ := requester.indicator.state()
	assert.True(t, pending)

	require.True(t, arbiter.presenter.resolve("T1", model.VerdictDeny))
	s.pump()
	assert.Empty(t, arbiter.pendingIDs(t))
	assert.Empty(t, requester.pendingIDs(t))
	assert.Equal(t, model.StateIdle, requester.State("T1"))
	assert.Contains(t, requester.notifier.codes(), NoticeMovementDenied)
	assert.Empty(t, requester.executor.recorded())
	assert.Zero(t, arbiter.renderer.activeCount())
	assert.Zero(t, requester.renderer.activeCount())
	pending, _ = requester.indicator.state()
	assert.False(t, pending)
	assert.EqualValues(t, 1, requester.Stats().Denied)
}

func TestService_ApproveScenario(t *testing.T) {
	var testCases = []struct {
		description string
		waypoints   []model.Point
		destination model.Point
		controls    bool
		expect      []move
	}{
		{
			description: "destination only",
			destination: model.Point{X: 5, Y: 5},
			controls:    true,
			expect:      []move{{entityID: "T1", point: model.Point{X: 5, Y: 5}}},
		},
		{
			description: "legs in path order",
			waypoints:   []model.Point{{X: 1, Y: 1}, {X: 2, Y: 3}},
			destination: model.Point{X: 5, Y: 5},
			controls:    true,
			expect: []move{
				{entityID: "T1", point: model.Point{X: 1, Y: 1}},
				{entityID: "T1", point: model.Point{X: 2, Y: 3}},
				{entityID: "T1", point: model.Point{X: 5, Y: 5}},
			},
		},
		{
			description: "not controlled here",
			destination: model.Point{X: 5, Y: 5},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			s := newSession(t, true)
			arbiter := s.join("gm", model.RoleArbiter)
			requester := s.join("p1", model.RoleRequester, WithController(ownController{"T1": testCase.controls}))
			observer := s.join("p2", model.RoleRequester, WithController(ownController{"T1": true}))

			require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", testCase.destination, testCase.waypoints...)))
			s.pump()
			require.True(t, arbiter.presenter.resolve("T1", model.VerdictApprove))
			s.pump()

			assert.Equal(t, testCase.expect, requester.executor.recorded())
			assert.Empty(t, observer.executor.recorded())
			assert.Empty(t, arbiter.pendingIDs(t))
			assert.Empty(t, requester.pendingIDs(t))
			assert.Empty(t, observer.pendingIDs(t))
			assert.Zero(t, observer.renderer.activeCount())
			if testCase.controls {
				assert.Contains(t, requester.notifier.codes(), NoticeMovementApproved)
				assert.EqualValues(t, 1, requester.Stats().Moves)
			}
		})
	}
}

func TestService_MovementFailure(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester, WithController(ownController{"T1": true}))
	requester.executor.fail = errBlocked

	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 5, Y: 5})))
	s.pump()
	require.NoError(t, arbiter.Approve(s.ctx, "T1"))
	s.pump()
	assert.Contains(t, requester.notifier.codes(), NoticeMovementFailed)
	assert.Zero(t, requester.Stats().Moves)
}

func TestService_CleanupOnDisable(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	first := s.join("p1", model.RoleRequester)
	second := s.join("p2", model.RoleRequester)

	require.NoError(t, first.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	require.NoError(t, second.RequestMovement(s.ctx, movement("T2", model.Point{X: 2})))
	s.pump()
	require.Equal(t, 2, arbiter.presenter.openCount())

	require.NoError(t, arbiter.SetEnabled(s.ctx, false))
	s.pump()
	for _, p := range []*peer{arbiter, first, second} {
		assert.Empty(t, p.pendingIDs(t), p.Participant().ID)
		assert.Zero(t, p.renderer.activeCount(), p.Participant().ID)
		assert.Equal(t, model.StateIdle, p.State("T1"))
		assert.Equal(t, model.StateIdle, p.State("T2"))
	}
	assert.Zero(t, arbiter.presenter.openCount())
	pending, enabled := first.indicator.state()
	assert.False(t, pending)
	assert.False(t, enabled)
	stored, err := settings.EnabledFlag(second.settings).Enabled(s.ctx)
	require.NoError(t, err)
	assert.False(t, stored)

	err = first.RequestMovement(s.ctx, movement("T3", model.Point{X: 3}))
	assert.ErrorIs(t, err, ErrApprovalNotRequired)
}

func TestService_FlagReplicates(t *testing.T) {
	s := newSession(t, false)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester)
	assert.NoError(t, requester.AuthorizeDrag(s.ctx))

	require.NoError(t, arbiter.SetEnabled(s.ctx, true))
	s.pump()
	late := s.join("p2", model.RoleRequester)
	for _, p := range []*peer{requester, late} {
		enabled, err := p.Enabled(s.ctx)
		require.NoError(t, err)
		assert.True(t, enabled, p.Participant().ID)
		_, indicated := p.indicator.state()
		assert.True(t, indicated, p.Participant().ID)
		assert.ErrorIs(t, p.AuthorizeDrag(s.ctx), ErrMovementLocked, p.Participant().ID)
	}
	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	s.pump()
	assert.Equal(t, []string{"T1"}, arbiter.pendingIDs(t))

	// an older snapshot replayed late leaves the flag alone
	gm := model.Participant{ID: "gm", Role: model.RoleArbiter}
	disabled := false
	stale := model.NewMessage(model.TypeUpdatePendingRequests, gm)
	stale.Updates = &model.Updates{Epoch: arbiter.registry.Epoch(), Revision: 1, Snapshot: true, Enabled: &disabled, Entries: map[string]*model.MovementRequest{}}
	require.NoError(t, requester.Handle(s.ctx, stale))
	enabled, err := requester.Enabled(s.ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, []string{"T1"}, requester.pendingIDs(t))

	require.NoError(t, arbiter.SetEnabled(s.ctx, false))
	s.pump()
	for _, p := range []*peer{requester, late} {
		enabled, err := p.Enabled(s.ctx)
		require.NoError(t, err)
		assert.False(t, enabled, p.Participant().ID)
		assert.NoError(t, p.AuthorizeDrag(s.ctx), p.Participant().ID)
	}
}

func TestService_DuplicateFromDifferentRequesters(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	first := s.join("p1", model.RoleRequester)
	second := s.join("p2", model.RoleRequester)

	require.NoError(t, first.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	require.NoError(t, second.RequestMovement(s.ctx, movement("T1", model.Point{X: 9})))
	s.pump()

	pending, err := arbiter.Pending(s.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].RequesterID)
	assert.Equal(t, model.Point{X: 1}, pending[0].Destination)
	assert.Equal(t, 1, arbiter.presenter.presented)
	assert.EqualValues(t, 1, arbiter.Stats().Rejected)

	// the arbiter kept p1's request, so p2's submission is dropped locally
	assert.Equal(t, model.StateIdle, second.State("T1"))
	assert.Equal(t, []string{NoticeRequestSent, NoticePendingRequest}, second.notifier.codes())
	assert.Equal(t, []string{"T1"}, second.pendingIDs(t))
	mirrored, err := second.Pending(s.ctx)
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "p1", mirrored[0].RequesterID)
	busy, _ := second.indicator.state()
	assert.False(t, busy)
	assert.EqualValues(t, 1, second.Stats().Cancelled)

	// once the mirror knows the entity, the duplicate never leaves the client
	err = second.RequestMovement(s.ctx, movement("T1", model.Point{X: 9}))
	assert.ErrorIs(t, err, approval.ErrRequestPending)

	require.NoError(t, arbiter.Approve(s.ctx, "T1"))
	s.pump()
	assert.EqualValues(t, 1, first.Stats().Approved)
	assert.Zero(t, second.Stats().Approved)
	assert.Equal(t, model.StateIdle, second.State("T1"))
	assert.NotContains(t, second.notifier.codes(), NoticeMovementApproved)
	assert.Empty(t, second.pendingIDs(t))
}

func TestService_ForeignVerdictSupersedesOwnRequest(t *testing.T) {
	s := newSession(t, true)
	s.join("gm", model.RoleArbiter)
	requester := s.join("p2", model.RoleRequester, WithController(ownController{"T1": true}))
	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 9})))

	// a verdict for another requester's request reaches p2 before any mirror update
	msg := model.NewMessage(model.TypeMovementApproved, model.Participant{ID: "gm", Role: model.RoleArbiter})
	msg.Request = &model.MovementRequest{EntityID: "T1", RequesterID: "p1", Destination: model.Point{X: 1}}
	require.NoError(t, requester.Handle(s.ctx, msg))
	requester.Wait()
	assert.Zero(t, requester.Stats().Approved)
	assert.Empty(t, requester.executor.recorded())
	assert.Contains(t, requester.notifier.codes(), NoticePendingRequest)
	assert.Equal(t, model.StateIdle, requester.State("T1"))
}

func TestService_LocalDuplicate(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester)

	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	err := requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 2}))
	assert.ErrorIs(t, err, approval.ErrRequestPending)
	s.pump()
	assert.EqualValues(t, 1, arbiter.Stats().Received)
	assert.EqualValues(t, 1, requester.Stats().Submitted)
	assert.EqualValues(t, 1, requester.Stats().Rejected)
}

func TestService_CancelByRequester(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester)
	observer := s.join("p2", model.RoleRequester)

	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	s.pump()
	stale := arbiter.presenter.open["T1"]
	require.NotNil(t, stale)

	require.NoError(t, requester.CancelRequest(s.ctx, "T1"))
	s.pump()
	for _, p := range []*peer{arbiter, requester, observer} {
		assert.Empty(t, p.pendingIDs(t), p.Participant().ID)
		assert.Zero(t, p.renderer.activeCount(), p.Participant().ID)
	}
	assert.Equal(t, []string{"T1"}, arbiter.presenter.dismissed)
	assert.Contains(t, arbiter.notifier.codes(), NoticeRequestCancelledByUser)
	assert.Contains(t, requester.notifier.codes(), NoticeRequestCancelled)
	assert.Equal(t, model.StateIdle, requester.State("T1"))

	// a late answer from the dismissed surface is ignored
	stale(model.VerdictApprove)
	s.pump()
	assert.Empty(t, requester.executor.recorded())
	assert.Zero(t, arbiter.Stats().Approved)

	// cancelling again is a no-op
	assert.NoError(t, requester.CancelRequest(s.ctx, "T1"))
}

func TestService_CancelOwn(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	first := s.join("p1", model.RoleRequester)
	second := s.join("p2", model.RoleRequester)

	require.NoError(t, first.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	require.NoError(t, first.RequestMovement(s.ctx, movement("T2", model.Point{X: 2})))
	require.NoError(t, second.RequestMovement(s.ctx, movement("T3", model.Point{X: 3})))
	s.pump()

	cancelled, err := first.CancelOwn(s.ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"T1", "T2"}, cancelled)
	s.pump()
	assert.Equal(t, []string{"T3"}, arbiter.pendingIDs(t))
	assert.Equal(t, []string{"T3"}, first.pendingIDs(t))
	assert.Equal(t, []string{"T3"}, second.pendingIDs(t))
}

func TestService_ArbiterLeaves(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	first := s.join("p1", model.RoleRequester)
	second := s.join("p2", model.RoleRequester)

	require.NoError(t, first.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	require.NoError(t, second.RequestMovement(s.ctx, movement("T2", model.Point{X: 2})))
	s.pump()
	// submitted but never seen by the arbiter
	require.NoError(t, second.RequestMovement(s.ctx, movement("T3", model.Point{X: 3})))
	s.leave(arbiter)

	for _, p := range []*peer{first, second} {
		assert.Empty(t, p.pendingIDs(t), p.Participant().ID)
		assert.Zero(t, p.renderer.activeCount(), p.Participant().ID)
		for _, entityID := range []string{"T1", "T2", "T3"} {
			assert.Equal(t, model.StateIdle, p.State(entityID))
		}
	}
	assert.Contains(t, first.notifier.codes(), NoticeRequestCancelled)
	assert.EqualValues(t, 2, second.Stats().Cancelled)
}

func TestService_RequesterLeaves(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	first := s.join("p1", model.RoleRequester)
	second := s.join("p2", model.RoleRequester)

	require.NoError(t, first.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	require.NoError(t, second.RequestMovement(s.ctx, movement("T2", model.Point{X: 2})))
	s.pump()
	s.leave(first)

	assert.Equal(t, []string{"T2"}, arbiter.pendingIDs(t))
	assert.Equal(t, []string{"T2"}, second.pendingIDs(t))
	assert.Equal(t, []string{"T1"}, arbiter.presenter.dismissed)
	assert.Equal(t, model.StateRequested, arbiter.State("T2"))
	assert.Equal(t, model.StateRequested, second.State("T2"))
}

func TestService_LateJoinerReceivesSnapshot(t *testing.T) {
	s := newSession(t, true)
	s.join("gm", model.RoleArbiter)
	first := s.join("p1", model.RoleRequester)
	require.NoError(t, first.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	s.pump()

	late := s.join("p2", model.RoleRequester)
	assert.Equal(t, []string{"T1"}, late.pendingIDs(t))
	assert.Equal(t, 1, late.renderer.activeCount())
}

func TestService_RestoresPersistedRegistry(t *testing.T) {
	s := newSession(t, true)
	persisted := store.NewCloningStore[string, model.MovementRequest](func(r *model.MovementRequest) string { return r.EntityID }, (*model.MovementRequest).Clone)
	require.NoError(t, persisted.Save(s.ctx, &model.MovementRequest{EntityID: "T1", RequesterID: "p1", Destination: model.Point{X: 4}}))

	requester := s.join("p1", model.RoleRequester, WithController(ownController{"T1": true}))
	arbiter := s.join("gm", model.RoleArbiter, WithRegistryStore(persisted))
	assert.Equal(t, 1, arbiter.presenter.openCount())
	assert.Equal(t, model.StateRequested, arbiter.State("T1"))
	assert.Equal(t, []string{"T1"}, requester.pendingIDs(t))
	assert.Equal(t, model.StateRequested, requester.State("T1"))

	require.NoError(t, arbiter.Approve(s.ctx, "T1"))
	s.pump()
	assert.Zero(t, persisted.Len())
	assert.Equal(t, []move{{entityID: "T1", point: model.Point{X: 4}}}, requester.executor.recorded())
}

func TestService_PolicyDecides(t *testing.T) {
	var testCases = []struct {
		description string
		policy      *policy.Policy
		expectState model.State
		expectMoves int
	}{
		{description: "auto approve", policy: &policy.Policy{Mode: policy.ModeAuto}, expectState: model.StateApproved, expectMoves: 1},
		{description: "auto deny", policy: &policy.Policy{Mode: policy.ModeDeny}, expectState: model.StateDenied},
		{description: "blocked requester", policy: &policy.Policy{Mode: policy.ModeAuto, BlockList: []string{"P1"}}, expectState: model.StateDenied},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			s := newSession(t, true)
			arbiter := s.join("gm", model.RoleArbiter, WithPolicy(testCase.policy))
			requester := s.join("p1", model.RoleRequester, WithController(ownController{"T1": true}))

			var transitions []model.Transition
			arbiter.machine.OnTransition(func(transition model.Transition) { transitions = append(transitions, transition) })
			require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
			s.pump()
			require.NotEmpty(t, transitions)
			assert.Equal(t, testCase.expectState, transitions[len(transitions)-1].To)
			assert.Len(t, requester.executor.recorded(), testCase.expectMoves)
			assert.Zero(t, arbiter.presenter.presented)
		})
	}
}

func TestService_AutoDecider(t *testing.T) {
	s := newSession(t, true)
	s.join("gm", model.RoleArbiter, WithPresenter(AutoApprove(0)))
	requester := s.join("p1", model.RoleRequester, WithController(ownController{"T1": true}))

	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 7})))
	s.pump()
	assert.Equal(t, []move{{entityID: "T1", point: model.Point{X: 7}}}, requester.executor.recorded())
}

func TestService_StaleResolution(t *testing.T) {
	var testCases = []struct {
		description string
		stale       string
		expectMoves int
	}{
		{description: "apply", stale: policy.StaleApply, expectMoves: 1},
		{description: "ignore", stale: policy.StaleIgnore},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			s := newSession(t, true)
			p := policy.Default()
			p.StaleResolution = testCase.stale
			requester := s.join("p1", model.RoleRequester, WithPolicy(p), WithController(ownController{"T1": true}))

			msg := model.NewMessage(model.TypeMovementApproved, model.Participant{ID: "gm", Role: model.RoleArbiter})
			msg.Request = &model.MovementRequest{EntityID: "T1", RequesterID: "p1", Destination: model.Point{X: 1}}
			require.NoError(t, requester.Handle(s.ctx, msg))
			requester.Wait()
			assert.Len(t, requester.executor.recorded(), testCase.expectMoves)
			assert.Equal(t, model.StateIdle, requester.State("T1"))
		})
	}
}

func TestService_ResolveUnknownIsNoop(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester)

	assert.NoError(t, arbiter.Approve(s.ctx, "ghost"))
	assert.NoError(t, arbiter.Deny(s.ctx, "ghost"))
	assert.Zero(t, requester.inbox.Size())

	cancel := model.NewMessage(model.TypeCancelMovementRequest, model.Participant{ID: "gm", Role: model.RoleArbiter})
	cancel.Cancel = &model.Cancellation{EntityID: "ghost", RequesterID: "p1"}
	assert.NoError(t, requester.Handle(s.ctx, cancel))
	assert.Empty(t, requester.notifier.codes())
}

func TestService_Authority(t *testing.T) {
	arbiterID := model.Participant{ID: "gm", Role: model.RoleArbiter}
	rogue := model.Participant{ID: "p2", Role: model.RoleRequester}

	var testCases = []struct {
		description string
		target      model.Role
		message     func() *model.Message
		expectErr   error
	}{
		{
			description: "requester cannot approve",
			target:      model.RoleRequester,
			message: func() *model.Message {
				msg := model.NewMessage(model.TypeMovementApproved, rogue)
				msg.Request = &model.MovementRequest{EntityID: "T1", RequesterID: "p1"}
				return msg
			},
			expectErr: ErrUnauthorizedSender,
		},
		{
			description: "requester cannot replicate",
			target:      model.RoleRequester,
			message: func() *model.Message {
				msg := model.NewMessage(model.TypeUpdatePendingRequests, rogue)
				msg.Updates = &model.Updates{Entries: map[string]*model.MovementRequest{"T9": {EntityID: "T9", RequesterID: "p2"}}}
				return msg
			},
			expectErr: ErrUnauthorizedSender,
		},
		{
			description: "presence must come from the bus",
			target:      model.RoleRequester,
			message: func() *model.Message {
				msg := model.NewMessage(model.TypeParticipantLeft, rogue)
				msg.Participant = &arbiterID
				return msg
			},
			expectErr: ErrUnauthorizedSender,
		},
		{
			description: "arbiter ignores replication",
			target:      model.RoleArbiter,
			message: func() *model.Message {
				msg := model.NewMessage(model.TypeUpdatePendingRequests, rogue)
				msg.Updates = &model.Updates{Entries: map[string]*model.MovementRequest{"T9": {EntityID: "T9", RequesterID: "p2"}}}
				return msg
			},
		},
		{
			description: "arbiter rejects request on behalf of another",
			target:      model.RoleArbiter,
			message: func() *model.Message {
				msg := model.NewMessage(model.TypeRequestMovement, rogue)
				msg.Request = &model.MovementRequest{EntityID: "T9", RequesterID: "p1"}
				return msg
			},
			expectErr: ErrNotOwner,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			s := newSession(t, true)
			target := s.join("target", testCase.target)
			err := target.Handle(s.ctx, testCase.message())
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Empty(t, target.pendingIDs(t))
		})
	}
}

func TestService_ForeignCancelRejected(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	owner := s.join("p1", model.RoleRequester)
	require.NoError(t, owner.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	s.pump()

	msg := model.NewMessage(model.TypeCancelMovementRequest, model.Participant{ID: "p2", Role: model.RoleRequester})
	msg.Cancel = &model.Cancellation{EntityID: "T1", RequesterID: "p2"}
	assert.ErrorIs(t, arbiter.Handle(s.ctx, msg), ErrNotOwner)
	assert.Equal(t, []string{"T1"}, arbiter.pendingIDs(t))
}

func TestService_Dedupe(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)

	msg := model.NewMessage(model.TypeRequestMovement, model.Participant{ID: "p1", Role: model.RoleRequester})
	msg.Request = &model.MovementRequest{EntityID: "T1", RequesterID: "p1"}
	require.NoError(t, arbiter.Handle(s.ctx, msg))
	require.NoError(t, arbiter.Handle(s.ctx, msg.Clone()))
	assert.EqualValues(t, 1, arbiter.Stats().Received)
	assert.Zero(t, arbiter.Stats().Rejected)
}

func TestService_RoleGuards(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter)
	requester := s.join("p1", model.RoleRequester)

	assert.ErrorIs(t, requester.Approve(s.ctx, "T1"), ErrNotArbiter)
	assert.ErrorIs(t, requester.SetEnabled(s.ctx, false), ErrNotArbiter)
	assert.ErrorIs(t, requester.Resync(s.ctx), ErrNotArbiter)
	assert.ErrorIs(t, arbiter.RequestMovement(s.ctx, movement("T1", model.Point{})), ErrNotRequester)
	assert.ErrorIs(t, requester.RequestMovement(s.ctx, &model.MovementRequest{EntityID: "T1", RequesterID: "p9"}), ErrNotOwner)
	assert.ErrorIs(t, requester.RequestMovement(s.ctx, &model.MovementRequest{}), model.ErrInvalidRequest)

	enabled, err := arbiter.Toggle(s.ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	enabled, err = arbiter.Toggle(s.ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestService_Authorize(t *testing.T) {
	var testCases = []struct {
		description string
		role        model.Role
		enabled     bool
		exempt      []string
		expectErr   error
	}{
		{description: "arbiter moves freely", role: model.RoleArbiter, enabled: true},
		{description: "disabled", role: model.RoleRequester},
		{description: "exempt requester", role: model.RoleRequester, enabled: true, exempt: []string{"p1"}},
		{description: "requires approval", role: model.RoleRequester, enabled: true, expectErr: ErrApprovalRequired},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			s := newSession(t, testCase.enabled)
			p := policy.Default()
			p.Exempt = testCase.exempt
			target := s.join("p1", testCase.role, WithPolicy(p), WithSettings(flagStore(t, testCase.enabled)))
			err := target.Authorize(s.ctx)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
				return
			}
			assert.NoError(t, err)
			assert.NoError(t, target.AuthorizeDrag(s.ctx))
		})
	}
}

func TestService_AuthorizeDragThrottlesWarning(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock.NowFunc = func() time.Time { return now }
	defer func() { clock.NowFunc = time.Now }()

	s := newSession(t, true)
	requester := s.join("p1", model.RoleRequester, WithSettings(flagStore(t, true)))
	ctx := context.Background()

	assert.ErrorIs(t, requester.AuthorizeDrag(ctx), ErrMovementLocked)
	now = now.Add(time.Second)
	assert.ErrorIs(t, requester.AuthorizeDrag(ctx), ErrMovementLocked)
	assert.Equal(t, []string{NoticeMovementLocked}, requester.notifier.codes())

	now = now.Add(policy.DefaultLockWarningInterval)
	assert.ErrorIs(t, requester.AuthorizeDrag(ctx), ErrMovementLocked)
	assert.Equal(t, []string{NoticeMovementLocked, NoticeMovementLocked}, requester.notifier.codes())
}

func TestService_StartStop(t *testing.T) {
	s := newSession(t, true)
	arbiter := s.join("gm", model.RoleArbiter, WithPresenter(AutoDeny(0)))
	requester := s.join("p1", model.RoleRequester)
	s.peers = nil

	require.NoError(t, arbiter.Start(s.ctx))
	require.NoError(t, requester.Start(s.ctx))
	defer arbiter.Stop()
	defer requester.Stop()

	require.NoError(t, requester.RequestMovement(s.ctx, movement("T1", model.Point{X: 1})))
	assert.Eventually(t, func() bool {
		return requester.Stats().Denied == 1
	}, 2*time.Second, 10*time.Millisecond)
}
