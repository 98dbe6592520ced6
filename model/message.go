package model

import (
	"time"

	"github.com/viant/movegate/internal/clock"
	"github.com/viant/movegate/internal/idgen"
)

// MessageType identifies a bus message.
type MessageType string

const (
	TypeRequestMovement       MessageType = "requestMovement"
	TypeMovementApproved      MessageType = "movementApproved"
	TypeMovementDenied        MessageType = "movementDenied"
	TypeCancelMovementRequest MessageType = "cancelMovementRequest"
	TypeUpdatePendingRequests MessageType = "updatePendingRequests"
	TypeRequestCleanup        MessageType = "requestCleanup"

	// presence, synthesised by the bus
	TypeParticipantJoined MessageType = "participantJoined"
	TypeParticipantLeft   MessageType = "participantLeft"
)

// Message is the envelope broadcast to every session participant.
// Exactly one payload field is set, depending on Type.
type Message struct {
	ID          string           `json:"id"`
	Type        MessageType      `json:"type"`
	SenderID    string           `json:"senderId,omitempty"`
	SenderRole  Role             `json:"senderRole,omitempty"`
	SentAt      time.Time        `json:"sentAt"`
	Request     *MovementRequest `json:"request,omitempty"`
	Cancel      *Cancellation    `json:"cancel,omitempty"`
	Updates     *Updates         `json:"updates,omitempty"`
	Participant *Participant     `json:"participant,omitempty"`
}

// NewMessage creates a message authored by sender.
func NewMessage(messageType MessageType, sender Participant) *Message {
	return &Message{
		ID:         idgen.New(),
		Type:       messageType,
		SenderID:   sender.ID,
		SenderRole: sender.Role,
		SentAt:     clock.Now(),
	}
}

// NewPresence creates a join/leave announcement on behalf of the bus.
func NewPresence(messageType MessageType, participant Participant) *Message {
	return &Message{
		ID:          idgen.New(),
		Type:        messageType,
		SentAt:      clock.Now(),
		Participant: &participant,
	}
}

// Clone returns a deep copy so that each receiver owns its payload.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	ret := *m
	ret.Request = m.Request.Clone()
	if m.Cancel != nil {
		c := *m.Cancel
		ret.Cancel = &c
	}
	ret.Updates = m.Updates.Clone()
	if m.Participant != nil {
		p := *m.Participant
		ret.Participant = &p
	}
	return &ret
}

// Updates replicates registry changes; a nil entry removes the entity.
// Revision increases monotonically within an Epoch (one arbiter run), which
// lets mirrors drop duplicated or reordered deltas. Snapshots also carry the
// arbiter's "approval required" flag.
type Updates struct {
	Epoch    string                      `json:"epoch,omitempty"`
	Revision uint64                      `json:"revision,omitempty"`
	Snapshot bool                        `json:"snapshot,omitempty"`
	Enabled  *bool                       `json:"enabled,omitempty"`
	Entries  map[string]*MovementRequest `json:"entries"`
}

// Clone returns a deep copy.
func (u *Updates) Clone() *Updates {
	if u == nil {
		return nil
	}
	ret := *u
	if u.Enabled != nil {
		enabled := *u.Enabled
		ret.Enabled = &enabled
	}
	ret.Entries = make(map[string]*MovementRequest, len(u.Entries))
	for k, v := range u.Entries {
		ret.Entries[k] = v.Clone()
	}
	return &ret
}
