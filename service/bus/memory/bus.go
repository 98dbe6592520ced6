package memory

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/bus"
	"github.com/viant/movegate/service/messaging"
	mmemory "github.com/viant/movegate/service/messaging/memory"
)

// Bus is an in-process bus: each participant owns a FIFO inbox queue, so
// messages from one sender are delivered in publish order.
type Bus struct {
	mu      sync.RWMutex
	members map[string]*endpoint
	config  mmemory.Config
}

// Option customises the bus.
type Option func(b *Bus)

// WithQueueConfig overrides the inbox queue configuration.
func WithQueueConfig(config mmemory.Config) Option {
	return func(b *Bus) { b.config = config }
}

// New creates an in-process bus.
func New(options ...Option) *Bus {
	ret := &Bus{
		members: make(map[string]*endpoint),
		config:  mmemory.InboxConfig(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Join registers a participant. Re-joining with the same ID replaces the
// previous endpoint without announcing a departure.
func (b *Bus) Join(ctx context.Context, participant model.Participant) (bus.Endpoint, error) {
	if err := bus.Validate(participant); err != nil {
		return nil, err
	}
	ret := &endpoint{
		bus:         b,
		participant: participant,
		inbox:       mmemory.NewQueue[model.Message](b.config),
	}
	b.mu.Lock()
	if previous, ok := b.members[participant.ID]; ok {
		previous.markClosed()
	}
	b.members[participant.ID] = ret
	b.mu.Unlock()
	b.broadcast(ctx, participant.ID, model.NewPresence(model.TypeParticipantJoined, participant))
	return ret, nil
}

// Members returns the participants currently attached, ordered by ID.
func (b *Bus) Members() []model.Participant {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ret := make([]model.Participant, 0, len(b.members))
	for _, member := range b.members {
		ret = append(ret, member.participant)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

func (b *Bus) leave(ctx context.Context, e *endpoint) {
	b.mu.Lock()
	current, ok := b.members[e.participant.ID]
	if ok && current == e {
		delete(b.members, e.participant.ID)
	}
	b.mu.Unlock()
	if ok && current == e {
		b.broadcast(ctx, e.participant.ID, model.NewPresence(model.TypeParticipantLeft, e.participant))
	}
}

// broadcast delivers msg to all members but the sender. Delivery failures
// are logged and dropped; the protocol converges on the next snapshot.
func (b *Bus) broadcast(ctx context.Context, senderID string, msg *model.Message) error {
	b.mu.RLock()
	targets := make([]*endpoint, 0, len(b.members))
	for id, member := range b.members {
		if id != senderID {
			targets = append(targets, member)
		}
	}
	b.mu.RUnlock()

	var firstErr error
	for _, target := range targets {
		if err := target.inbox.Publish(ctx, msg.Clone()); err != nil {
			log.Printf("movegate: bus delivery of %s to %s dropped: %v", msg.Type, target.participant.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

type endpoint struct {
	bus         *Bus
	participant model.Participant
	inbox       *mmemory.Queue[model.Message]
	mu          sync.Mutex
	closed      bool
}

func (e *endpoint) Participant() model.Participant { return e.participant }

func (e *endpoint) Inbox() messaging.Queue[model.Message] { return e.inbox }

func (e *endpoint) Publish(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return nil
	}
	if e.isClosed() {
		return bus.ErrClosed
	}
	return e.bus.broadcast(ctx, e.participant.ID, msg)
}

func (e *endpoint) Leave(ctx context.Context) error {
	if e.markClosed() {
		return nil
	}
	e.bus.leave(ctx, e)
	return nil
}

// markClosed closes the endpoint and reports whether it was already closed.
func (e *endpoint) markClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.closed
	e.closed = true
	return was
}

func (e *endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

var _ bus.Bus = (*Bus)(nil)
