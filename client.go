package movegate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/viant/afs"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/policy"
	"github.com/viant/movegate/service/bus"
	busmemory "github.com/viant/movegate/service/bus/memory"
	"github.com/viant/movegate/service/bus/ws"
	"github.com/viant/movegate/service/coordinator"
	daofs "github.com/viant/movegate/service/dao/fs"
	"github.com/viant/movegate/service/event"
	"github.com/viant/movegate/service/messaging"
	mfs "github.com/viant/movegate/service/messaging/fs"
	mmemory "github.com/viant/movegate/service/messaging/memory"
	"github.com/viant/movegate/service/settings"
	"github.com/viant/movegate/tracing"
)

// Version is reported to tracing backends.
const Version = "0.1.0"

// Client is one participant of a movement-approval session.
type Client struct {
	config             *Config
	bus                bus.Bus
	coordinatorOptions []coordinator.Option
	onTransition       event.Handler[model.Transition]

	participant model.Participant
	endpoint    bus.Endpoint
	coordinator *coordinator.Service
	settings    settings.Store
	journal     *event.Listener[model.Transition]
}

// New joins the session as participant and wires the coordination service.
func New(ctx context.Context, participant model.Participant, options ...Option) (*Client, error) {
	ret := &Client{participant: participant}
	for _, option := range options {
		option(ret)
	}
	if ret.config == nil {
		ret.config = DefaultConfig()
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	if err := ret.init(ctx); err != nil {
		_ = ret.Close(ctx)
		return nil, err
	}
	return ret, nil
}

func (c *Client) init(ctx context.Context) error {
	cfg := c.config
	if cfg.Tracing.Enabled {
		if err := tracing.Init(c.serviceName(), Version, cfg.Tracing.OutputFile); err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
	store, err := settings.New(&cfg.Settings)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	c.settings = store

	if c.bus == nil {
		c.bus = newBus(cfg.Bus)
	}
	if c.endpoint, err = c.bus.Join(ctx, c.participant); err != nil {
		return fmt.Errorf("failed to join session %v: %w", cfg.Session.ID, err)
	}

	options := []coordinator.Option{
		coordinator.WithSettings(store),
		coordinator.WithPolicy(policy.FromConfig(&cfg.Policy)),
		coordinator.WithSessionID(cfg.Session.ID),
		coordinator.WithDedupeWindow(cfg.Bus.DedupeWindow),
	}
	if cfg.Registry.BaseURL != "" && c.participant.IsArbiter() {
		registryStore, err := daofs.New[model.MovementRequest](cfg.Registry.BaseURL, func(r *model.MovementRequest) string { return r.EntityID })
		if err != nil {
			return fmt.Errorf("failed to open registry store: %w", err)
		}
		options = append(options, coordinator.WithRegistryStore(registryStore))
	}
	publisher, err := c.transitionPublisher()
	if err != nil {
		return err
	}
	if publisher != nil {
		options = append(options, coordinator.WithTransitions(publisher))
		c.journal = event.NewListener(publisher, c.handleTransition)
	}
	c.coordinator = coordinator.New(c.endpoint, append(options, c.coordinatorOptions...)...)
	return nil
}

func newBus(cfg BusConfig) bus.Bus {
	if cfg.Vendor == BusWS {
		return ws.NewBus(cfg.URL)
	}
	queue := mmemory.InboxConfig()
	if cfg.QueueBuffer > 0 {
		queue.QueueBuffer = cfg.QueueBuffer
	}
	return busmemory.New(busmemory.WithQueueConfig(queue))
}

// transitionPublisher journals transitions to files when configured, or
// hands them to the transition handler through a memory queue. Both retry a
// failed handler Journal.MaxRetries times, Journal.RetryDelay apart.
func (c *Client) transitionPublisher() (*event.Publisher[model.Transition], error) {
	journal := c.config.Journal
	var queue messaging.Queue[event.Event[model.Transition]]
	switch {
	case journal.BaseURL != "":
		config := mfs.DefaultConfig(journal.BaseURL)
		config.MaxRetries = journal.MaxRetries
		if journal.RetryDelay > 0 {
			config.RetryDelay = journal.RetryDelay
		}
		fsQueue, err := mfs.NewQueue[event.Event[model.Transition]](afs.New(), config)
		if err != nil {
			return nil, fmt.Errorf("failed to open transition journal: %w", err)
		}
		queue = fsQueue
	case c.onTransition != nil:
		config := mmemory.DefaultConfig()
		config.DropWhenFull = true
		config.MaxRetries = journal.MaxRetries
		if journal.RetryDelay > 0 {
			config.RetryDelay = journal.RetryDelay
		}
		queue = mmemory.NewQueue[event.Event[model.Transition]](config)
	default:
		return nil, nil
	}
	return event.NewPublisher[model.Transition](queue), nil
}

func (c *Client) handleTransition(e *event.Event[model.Transition]) error {
	if c.onTransition != nil {
		return c.onTransition(e)
	}
	t := e.Data
	log.Printf("movegate: %s %s: %s -> %s (%s)", c.participant.ID, t.EntityID, t.From, t.To, t.Reason)
	return nil
}

func (c *Client) serviceName() string {
	if c.config != nil && c.config.Tracing.ServiceName != "" {
		return c.config.Tracing.ServiceName
	}
	return "movegate"
}

// Start begins processing bus messages.
func (c *Client) Start(ctx context.Context) error {
	if c.journal != nil {
		c.journal.Start(ctx)
	}
	return c.coordinator.Start(ctx)
}

// Close stops the coordinator, leaves the session and releases stores.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.coordinator != nil {
		c.coordinator.Stop()
	}
	if c.journal != nil {
		c.journal.Stop()
	}
	if c.endpoint != nil {
		errs = append(errs, c.endpoint.Leave(ctx))
	}
	if closer, ok := c.settings.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Coordinator exposes the protocol operations (RequestMovement, Approve...).
func (c *Client) Coordinator() *coordinator.Service { return c.coordinator }

// Participant returns the local participant.
func (c *Client) Participant() model.Participant { return c.participant }

// Config returns the effective configuration.
func (c *Client) Config() *Config { return c.config }
