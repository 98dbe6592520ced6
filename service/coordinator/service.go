package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/movegate/model"
	"github.com/viant/movegate/policy"
	"github.com/viant/movegate/service/approval"
	"github.com/viant/movegate/service/bus"
	"github.com/viant/movegate/service/dao"
	"github.com/viant/movegate/service/event"
	"github.com/viant/movegate/service/reconciler"
	"github.com/viant/movegate/service/registry"
	"github.com/viant/movegate/service/settings"
	"github.com/viant/movegate/stats"
	"github.com/viant/movegate/tracing"
)

// Service coordinates movement approval for one participant.
type Service struct {
	mu          sync.Mutex
	participant model.Participant
	endpoint    bus.Endpoint
	routes      map[routeKey]route
	seen        *dedupe

	registry      *registry.Registry
	registryStore dao.Service[string, model.MovementRequest]
	machine       *approval.Machine
	reconciler    *reconciler.Reconciler
	flag          *settings.Flag
	policy        *policy.Policy
	stats         *stats.Stats
	transitions   *event.Publisher[model.Transition]
	sessionID     string

	renderer   Renderer
	executor   Executor
	notifier   Notifier
	presenter  DecisionPresenter
	controller Controller
	indicator  Indicator

	// entity -> preview channel
	previews map[string]string
	// entity -> decision surface token
	surfaces   map[string]uint64
	surfaceSeq uint64
	// requests this participant submitted and has not seen resolved
	own             map[string]*model.MovementRequest
	lastLockWarning time.Time

	async  sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a coordination service for the participant attached through endpoint.
func New(endpoint bus.Endpoint, options ...Option) *Service {
	ret := &Service{
		participant: endpoint.Participant(),
		endpoint:    endpoint,
		seen:        newDedupe(defaultDedupeWindow),
		reconciler:  reconciler.New(),
		policy:      policy.Default(),
		renderer:    nopRenderer{},
		executor:    nopExecutor{},
		notifier:    logNotifier{},
		presenter:   nopPresenter{},
		controller:  allController{},
		indicator:   nopIndicator{},
		previews:    make(map[string]string),
		surfaces:    make(map[string]uint64),
		own:         make(map[string]*model.MovementRequest),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.flag == nil {
		ret.flag = settings.EnabledFlag(settings.NewMemory())
	}
	if ret.stats == nil {
		ret.stats = stats.New(ret.participant.ID)
	}
	var registryOptions []registry.Option
	if ret.isArbiter() {
		registryOptions = append(registryOptions, registry.WithReplicator(ret.replicate))
		if ret.registryStore != nil {
			registryOptions = append(registryOptions, registry.WithStore(ret.registryStore))
		}
	}
	ret.registry = registry.New(registryOptions...)
	ret.machine = approval.New(ret.onTransition)
	ret.routes = ret.dispatchTable()
	return ret
}

// Participant returns the local participant.
func (s *Service) Participant() model.Participant { return s.participant }

// Start restores persisted state and begins consuming the inbox.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	err := s.restore(ctx)
	s.mu.Unlock()
	if err != nil {
		cancel()
		return err
	}
	go s.run(runCtx)
	return nil
}

// Stop ends message processing and waits for running movements.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.async.Wait()
}

// Wait blocks until pending decisions and movements started so far complete.
func (s *Service) Wait() {
	s.async.Wait()
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	inbox := s.endpoint.Inbox()
	for {
		msg, err := inbox.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("movegate: %s inbox: %v", s.participant.ID, err)
			continue
		}
		if msg == nil {
			continue
		}
		_ = s.Handle(ctx, msg.T())
		_ = msg.Ack()
	}
}

// restore replays a persisted registry on the arbiter and broadcasts a
// snapshot so that every mirror converges on the new epoch.
func (s *Service) restore(ctx context.Context) error {
	enabled, err := s.flag.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read approval flag: %w", err)
	}
	s.indicator.SetEnabled(enabled)
	if !s.isArbiter() {
		return nil
	}
	pending, err := s.registry.All(ctx)
	if err != nil {
		return err
	}
	for _, request := range pending {
		s.machine.Observe(request.EntityID)
		s.drawPreview(ctx, request)
		s.present(ctx, request)
	}
	s.resync(ctx)
	return nil
}

// Handle processes one inbound message. Duplicates, messages this role does
// not handle and messages from senders not allowed to author them are dropped.
func (s *Service) Handle(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen.seen(msg.ID) {
		return nil
	}
	r, ok := s.routes[routeKey{messageType: msg.Type, role: s.participant.Role}]
	if !ok {
		return nil
	}
	if !r.accepts(msg) {
		log.Printf("movegate: %s dropped %s from %s (%s): sender may not author it", s.participant.ID, msg.Type, msg.SenderID, msg.SenderRole)
		return fmt.Errorf("%w: %s from %s", ErrUnauthorizedSender, msg.Type, msg.SenderRole)
	}
	ctx, span := tracing.StartSpan(ctx, "coordinator."+string(msg.Type), "CONSUMER")
	span.WithAttributes(map[string]string{
		"participant": s.participant.ID,
		"role":        string(s.participant.Role),
		"sender":      msg.SenderID,
	})
	err := r.handle(ctx, msg)
	tracing.EndSpan(span, err)
	if err != nil {
		log.Printf("movegate: %s failed to handle %s: %v", s.participant.ID, msg.Type, err)
	}
	return err
}

// Enabled reports whether movement currently requires approval.
func (s *Service) Enabled(ctx context.Context) (bool, error) {
	return s.flag.Enabled(ctx)
}

// Pending returns the locally known pending requests, optionally narrowed by
// registry.ParamRequesterID or registry.ParamContainerID.
func (s *Service) Pending(ctx context.Context, parameters ...*dao.Parameter) ([]*model.MovementRequest, error) {
	return s.registry.Filter(ctx, parameters...)
}

// State returns the approval state of an entity.
func (s *Service) State(entityID string) model.State {
	return s.machine.State(entityID)
}

// Stats returns the local counters.
func (s *Service) Stats() stats.Counters {
	return s.stats.Snapshot()
}

func (s *Service) isArbiter() bool { return s.participant.IsArbiter() }

func (s *Service) replicate(ctx context.Context, updates *model.Updates) error {
	msg := model.NewMessage(model.TypeUpdatePendingRequests, s.participant)
	msg.Updates = updates
	return s.endpoint.Publish(ctx, msg)
}

// publish broadcasts a message; delivery failures are logged, never retried.
func (s *Service) publish(ctx context.Context, msg *model.Message) {
	if err := s.endpoint.Publish(ctx, msg); err != nil {
		log.Printf("movegate: %s failed to publish %s: %v", s.participant.ID, msg.Type, err)
	}
}

func (s *Service) notify(ctx context.Context, level Level, code, entityID, format string, args ...interface{}) {
	s.notifier.Notify(ctx, Notice{Level: level, Code: code, EntityID: entityID, Message: fmt.Sprintf(format, args...)})
}

func (s *Service) onTransition(transition model.Transition) {
	delta := stats.Delta{}
	switch transition.To {
	case model.StateRequested:
		delta.Pending = 1
	case model.StateApproved:
		delta.Approved, delta.Pending = 1, -1
	case model.StateDenied:
		delta.Denied, delta.Pending = 1, -1
	case model.StateCancelled:
		delta.Cancelled, delta.Pending = 1, -1
	}
	s.stats.Update(delta)
	if s.transitions == nil {
		return
	}
	e := event.NewEvent(&event.Context{
		SessionID:     s.sessionID,
		ParticipantID: s.participant.ID,
		Role:          string(s.participant.Role),
		EventType:     "transition",
	}, transition)
	if err := s.transitions.Publish(context.Background(), e); err != nil {
		log.Printf("movegate: failed to publish transition of %s: %v", transition.EntityID, err)
	}
}

func (s *Service) drawPreview(ctx context.Context, request *model.MovementRequest) {
	if _, ok := s.previews[request.EntityID]; ok {
		return
	}
	if err := s.renderer.DrawPreview(ctx, request.Clone()); err != nil {
		log.Printf("movegate: failed to draw preview of %s: %v", request.EntityID, err)
		return
	}
	s.previews[request.EntityID] = request.ChannelName
}

func (s *Service) clearPreview(ctx context.Context, entityID string) {
	channel, ok := s.previews[entityID]
	if !ok {
		return
	}
	delete(s.previews, entityID)
	if err := s.renderer.ClearPreview(ctx, entityID, channel); err != nil {
		log.Printf("movegate: failed to clear preview of %s: %v", entityID, err)
	}
}

func (s *Service) clearAllPreviews(ctx context.Context) {
	for entityID := range s.previews {
		s.clearPreview(ctx, entityID)
	}
}
