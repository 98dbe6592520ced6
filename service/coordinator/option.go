package coordinator

import (
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/policy"
	"github.com/viant/movegate/service/dao"
	"github.com/viant/movegate/service/event"
	"github.com/viant/movegate/service/settings"
	"github.com/viant/movegate/stats"
)

// Option customises a Service.
type Option func(s *Service)

func WithRenderer(renderer Renderer) Option {
	return func(s *Service) { s.renderer = renderer }
}

func WithExecutor(executor Executor) Option {
	return func(s *Service) { s.executor = executor }
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithPresenter(presenter DecisionPresenter) Option {
	return func(s *Service) { s.presenter = presenter }
}

func WithController(controller Controller) Option {
	return func(s *Service) { s.controller = controller }
}

func WithIndicator(indicator Indicator) Option {
	return func(s *Service) { s.indicator = indicator }
}

// WithSettings sets the store holding the "approval required" flag.
func WithSettings(store settings.Store) Option {
	return func(s *Service) { s.flag = settings.EnabledFlag(store) }
}

func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRegistryStore persists the arbiter's registry; ignored for requesters.
func WithRegistryStore(store dao.Service[string, model.MovementRequest]) Option {
	return func(s *Service) { s.registryStore = store }
}

// WithTransitions publishes every state transition as an event.
func WithTransitions(publisher *event.Publisher[model.Transition]) Option {
	return func(s *Service) { s.transitions = publisher }
}

func WithStats(counters *stats.Stats) Option {
	return func(s *Service) { s.stats = counters }
}

// WithSessionID tags published events.
func WithSessionID(sessionID string) Option {
	return func(s *Service) { s.sessionID = sessionID }
}

// WithDedupeWindow sets how many recent message IDs are remembered.
func WithDedupeWindow(size int) Option {
	return func(s *Service) { s.seen = newDedupe(size) }
}
