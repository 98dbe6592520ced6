package coordinator

import (
	"context"

	"github.com/viant/movegate/model"
)

type routeKey struct {
	messageType model.MessageType
	role        model.Role
}

type route struct {
	// roles allowed to author the message; empty means bus presence only
	senders []model.Role
	handle  func(ctx context.Context, msg *model.Message) error
}

func (r route) accepts(msg *model.Message) bool {
	if len(r.senders) == 0 {
		return msg.SenderID == "" && msg.Participant != nil
	}
	if msg.SenderID == "" {
		return false
	}
	for _, role := range r.senders {
		if role == msg.SenderRole {
			return true
		}
	}
	return false
}

func senders(roles ...model.Role) []model.Role { return roles }

// dispatchTable maps (message type, local role) to a handler. Combinations
// absent from the table are ignored.
func (s *Service) dispatchTable() map[routeKey]route {
	arbiter, requester := model.RoleArbiter, model.RoleRequester
	return map[routeKey]route{
		{model.TypeRequestMovement, arbiter}:       {senders: senders(requester), handle: s.onRequestMovement},
		{model.TypeCancelMovementRequest, arbiter}: {senders: senders(requester), handle: s.onCancelAsArbiter},
		{model.TypeParticipantJoined, arbiter}:     {handle: s.onParticipantJoined},
		{model.TypeParticipantLeft, arbiter}:       {handle: s.onParticipantLeft},

		{model.TypeMovementApproved, requester}:      {senders: senders(arbiter), handle: s.onApproved},
		{model.TypeMovementDenied, requester}:        {senders: senders(arbiter), handle: s.onDenied},
		{model.TypeCancelMovementRequest, requester}: {senders: senders(arbiter, requester), handle: s.onCancelAsRequester},
		{model.TypeUpdatePendingRequests, requester}: {senders: senders(arbiter), handle: s.onUpdatePendingRequests},
		{model.TypeRequestCleanup, requester}:        {senders: senders(arbiter), handle: s.onRequestCleanup},
		{model.TypeParticipantLeft, requester}:       {handle: s.onParticipantLeft},
	}
}

// Handles reports whether the local role reacts to messageType.
func (s *Service) Handles(messageType model.MessageType) bool {
	_, ok := s.routes[routeKey{messageType: messageType, role: s.participant.Role}]
	return ok
}

func (s *Service) onParticipantLeft(ctx context.Context, msg *model.Message) error {
	if msg.Participant.ID == s.participant.ID {
		return nil
	}
	_, err := s.reconciler.OnLeave(ctx, lockedCanceller{s}, *msg.Participant)
	return err
}
