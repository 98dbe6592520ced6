package movegate

import (
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/bus"
	"github.com/viant/movegate/service/coordinator"
	"github.com/viant/movegate/service/event"
	"github.com/viant/movegate/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Client.
type Option func(c *Client)

// WithConfig replaces DefaultConfig.
func WithConfig(config *Config) Option {
	return func(c *Client) { c.config = config }
}

// WithBus attaches the client to an existing bus, e.g. a shared in-process
// bus for several participants.
func WithBus(b bus.Bus) Option {
	return func(c *Client) { c.bus = b }
}

// WithCoordinatorOptions passes host collaborators (renderer, executor,
// notifier, presenter...) to the coordination service.
func WithCoordinatorOptions(options ...coordinator.Option) Option {
	return func(c *Client) {
		c.coordinatorOptions = append(c.coordinatorOptions, options...)
	}
}

// WithTransitionHandler receives every approval state transition. A handler
// error redelivers the transition until the journal retries run out.
func WithTransitionHandler(handler event.Handler[model.Transition]) Option {
	return func(c *Client) { c.onTransition = handler }
}

// WithTracingExporter configures OpenTelemetry with a custom SpanExporter,
// for example OTLP. The first successful initialisation wins.
func WithTracingExporter(exporter sdktrace.SpanExporter) Option {
	return func(c *Client) {
		_ = tracing.InitWithExporter(c.serviceName(), Version, exporter)
	}
}
