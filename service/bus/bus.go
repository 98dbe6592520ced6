package bus

import (
	"context"
	"errors"

	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/messaging"
)

var (
	// ErrClosed is returned when publishing through an endpoint that left the session.
	ErrClosed = errors.New("bus: endpoint closed")
	// ErrInvalidParticipant is returned when joining without an ID or a known role.
	ErrInvalidParticipant = errors.New("bus: invalid participant")
)

// Bus connects participants of one session.
type Bus interface {
	// Join registers the participant and returns its endpoint.
	Join(ctx context.Context, participant model.Participant) (Endpoint, error)
}

// Endpoint is one participant's attachment to the bus.
type Endpoint interface {
	// Participant returns the participant that joined.
	Participant() model.Participant

	// Publish broadcasts msg to every other participant.
	Publish(ctx context.Context, msg *model.Message) error

	// Inbox returns the queue of messages addressed to this participant.
	Inbox() messaging.Queue[model.Message]

	// Leave detaches the participant; the others receive participantLeft.
	Leave(ctx context.Context) error
}

// Validate checks a participant before it joins.
func Validate(participant model.Participant) error {
	if participant.ID == "" || !participant.Role.Valid() {
		return ErrInvalidParticipant
	}
	return nil
}
