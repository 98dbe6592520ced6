package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/movegate/model"
	busmemory "github.com/viant/movegate/service/bus/memory"
	mmemory "github.com/viant/movegate/service/messaging/memory"
	"github.com/viant/movegate/service/settings"
)

type recordingRenderer struct {
	mu      sync.Mutex
	drawn   []string
	cleared []string
	active  map[string]bool
}

func (r *recordingRenderer) DrawPreview(_ context.Context, request *model.MovementRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = make(map[string]bool)
	}
	r.drawn = append(r.drawn, request.EntityID)
	r.active[request.EntityID] = true
	return nil
}

func (r *recordingRenderer) ClearPreview(_ context.Context, entityID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, entityID)
	delete(r.active, entityID)
	return nil
}

func (r *recordingRenderer) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

type move struct {
	entityID string
	point    model.Point
}

type recordingExecutor struct {
	mu    sync.Mutex
	moves []move
	fail  error
}

func (e *recordingExecutor) MoveTo(_ context.Context, entityID string, point model.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.moves = append(e.moves, move{entityID: entityID, point: point})
	return nil
}

func (e *recordingExecutor) recorded() []move {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]move(nil), e.moves...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) codes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ret []string
	for _, notice := range n.notices {
		ret = append(ret, notice.Code)
	}
	return ret
}

// manualPresenter holds decision surfaces open until the test resolves them.
type manualPresenter struct {
	mu        sync.Mutex
	open      map[string]func(model.Verdict)
	presented int
	dismissed []string
}

func (p *manualPresenter) Present(_ context.Context, request *model.MovementRequest, resolve func(model.Verdict)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open == nil {
		p.open = make(map[string]func(model.Verdict))
	}
	p.presented++
	p.open[request.EntityID] = resolve
	return nil
}

func (p *manualPresenter) Dismiss(_ context.Context, entityID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, entityID)
	p.dismissed = append(p.dismissed, entityID)
	return nil
}

func (p *manualPresenter) resolve(entityID string, verdict model.Verdict) bool {
	p.mu.Lock()
	resolve, ok := p.open[entityID]
	delete(p.open, entityID)
	p.mu.Unlock()
	if ok {
		resolve(verdict)
	}
	return ok
}

func (p *manualPresenter) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

type ownController map[string]bool

func (c ownController) Controls(entityID string) bool { return c[entityID] }

type recordingIndicator struct {
	mu      sync.Mutex
	pending bool
	enabled bool
}

func (i *recordingIndicator) SetPending(pending bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending = pending
}

func (i *recordingIndicator) SetEnabled(enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.enabled = enabled
}

func (i *recordingIndicator) state() (pending, enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pending, i.enabled
}

// peer bundles a service with its recording collaborators.
type peer struct {
	*Service
	renderer  *recordingRenderer
	executor  *recordingExecutor
	notifier  *recordingNotifier
	presenter *manualPresenter
	indicator *recordingIndicator
	settings  settings.Store
	inbox     *mmemory.Queue[model.Message]
}

// session is a set of peers over an in-process bus, pumped by hand. Every
// peer keeps its own settings; only the arbiter's starts with the flag set.
type session struct {
	t       *testing.T
	ctx     context.Context
	bus     *busmemory.Bus
	enabled bool
	peers   []*peer
}

func newSession(t *testing.T, enabled bool) *session {
	return &session{t: t, ctx: context.Background(), bus: busmemory.New(), enabled: enabled}
}

func flagStore(t *testing.T, enabled bool) settings.Store {
	ret := settings.NewMemory()
	require.NoError(t, settings.EnabledFlag(ret).Set(context.Background(), enabled))
	return ret
}

func (s *session) join(id string, role model.Role, options ...Option) *peer {
	endpoint, err := s.bus.Join(s.ctx, model.Participant{ID: id, Name: "name-" + id, Role: role})
	require.NoError(s.t, err)
	ret := &peer{
		renderer:  &recordingRenderer{},
		executor:  &recordingExecutor{},
		notifier:  &recordingNotifier{},
		presenter: &manualPresenter{},
		indicator: &recordingIndicator{},
		settings:  flagStore(s.t, s.enabled && role == model.RoleArbiter),
		inbox:     endpoint.Inbox().(*mmemory.Queue[model.Message]),
	}
	base := []Option{
		WithSettings(ret.settings),
		WithRenderer(ret.renderer),
		WithExecutor(ret.executor),
		WithNotifier(ret.notifier),
		WithPresenter(ret.presenter),
		WithIndicator(ret.indicator),
		WithController(ownController{}),
	}
	ret.Service = New(endpoint, append(base, options...)...)
	require.NoError(s.t, ret.Service.restore(s.ctx))
	s.peers = append(s.peers, ret)
	s.pump()
	return ret
}

func (s *session) leave(p *peer) {
	require.NoError(s.t, p.endpoint.Leave(s.ctx))
	for i, candidate := range s.peers {
		if candidate == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}
	s.pump()
}

// pump delivers queued messages until every inbox is empty and no async
// work is running.
func (s *session) pump() {
	for round := 0; round < 100; round++ {
		delivered := 0
		for _, p := range s.peers {
			p.Wait()
			for p.inbox.Size() > 0 {
				msg, err := p.inbox.Consume(s.ctx)
				require.NoError(s.t, err)
				_ = p.Handle(s.ctx, msg.T())
				_ = msg.Ack()
				delivered++
			}
		}
		if delivered == 0 {
			return
		}
	}
	s.t.Fatal("session did not quiesce")
}

func (p *peer) pendingIDs(t *testing.T) []string {
	pending, err := p.Pending(context.Background())
	require.NoError(t, err)
	ret := []string{}
	for _, request := range pending {
		ret = append(ret, request.EntityID)
	}
	return ret
}

func movement(entityID string, destination model.Point, waypoints ...model.Point) *model.MovementRequest {
	return &model.MovementRequest{EntityID: entityID, ContainerID: "scene-1", Destination: destination, Waypoints: waypoints}
}

var errBlocked = errors.New("blocked")
