package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/movegate/model"
)

type fakeCanceller struct {
	role      model.Role
	pending   []*model.MovementRequest
	cancelled []string
	reason    string
}

func (f *fakeCanceller) Role() model.Role { return f.role }

func (f *fakeCanceller) PendingRequests(context.Context) []*model.MovementRequest {
	return f.pending
}

func (f *fakeCanceller) CancelPending(_ context.Context, requests []*model.MovementRequest, reason string) error {
	for _, request := range requests {
		f.cancelled = append(f.cancelled, request.EntityID)
	}
	f.reason = reason
	return nil
}

func TestReconciler_OnLeave(t *testing.T) {
	pending := []*model.MovementRequest{
		{EntityID: "T1", RequesterID: "alice"},
		{EntityID: "T2", RequesterID: "bob"},
		{EntityID: "T3", RequesterID: "alice"},
	}
	type testCase struct {
		description string
		role        model.Role
		departed    model.Participant
		expect      []string
		reason      string
	}
	testCases := []testCase{
		{
			description: "arbiter left, seen by requester",
			role:        model.RoleRequester,
			departed:    model.Participant{ID: "gm", Role: model.RoleArbiter},
			expect:      []string{"T1", "T2", "T3"},
			reason:      ReasonArbiterLeft,
		},
		{
			description: "requester left, seen by arbiter",
			role:        model.RoleArbiter,
			departed:    model.Participant{ID: "alice", Role: model.RoleRequester},
			expect:      []string{"T1", "T3"},
			reason:      ReasonRequesterLeft,
		},
		{
			description: "requester left, seen by requester",
			role:        model.RoleRequester,
			departed:    model.Participant{ID: "alice", Role: model.RoleRequester},
		},
		{
			description: "requester without requests left",
			role:        model.RoleArbiter,
			departed:    model.Participant{ID: "carol", Role: model.RoleRequester},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			canceller := &fakeCanceller{role: tc.role, pending: pending}
			cancelled, err := New().OnLeave(context.Background(), canceller, tc.departed)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, canceller.cancelled)
			assert.Equal(t, len(tc.expect), len(cancelled))
			assert.Equal(t, tc.reason, canceller.reason)
		})
	}
}
