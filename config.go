package movegate

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/viant/afs"
	"github.com/viant/movegate/internal/expand"
	"github.com/viant/movegate/policy"
	"github.com/viant/movegate/service/settings"
	"github.com/viant/movegate/tracing"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. MOVEGATE_BUS_URL.
const EnvPrefix = "MOVEGATE_"

// Bus vendors.
const (
	BusMemory = "memory"
	BusWS     = "ws"
)

// Config is a serialisable representation of a movegate deployment. It can
// be populated from YAML and environment variables. The zero value of every
// section falls back to package defaults.
type Config struct {
	Session  SessionConfig   `json:"session" yaml:"session" envPrefix:"SESSION_"`
	Bus      BusConfig       `json:"bus" yaml:"bus" envPrefix:"BUS_"`
	Settings settings.Config `json:"settings" yaml:"settings" envPrefix:"SETTINGS_"`
	Registry RegistryConfig  `json:"registry" yaml:"registry" envPrefix:"REGISTRY_"`
	Journal  JournalConfig   `json:"journal" yaml:"journal" envPrefix:"JOURNAL_"`
	Policy   policy.Config   `json:"policy" yaml:"policy" envPrefix:"POLICY_"`
	Tracing  tracing.Config  `json:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

type SessionConfig struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty" env:"ID"`
}

type BusConfig struct {
	Vendor string `json:"vendor,omitempty" yaml:"vendor,omitempty" env:"VENDOR"`
	// Listen is the hub address served by cmd/movegate.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty" env:"LISTEN"`
	// URL is the hub endpoint clients dial, e.g. ws://host:8080/bus.
	URL          string `json:"url,omitempty" yaml:"url,omitempty" env:"URL"`
	QueueBuffer  int    `json:"queueBuffer,omitempty" yaml:"queueBuffer,omitempty" env:"QUEUE_BUFFER"`
	DedupeWindow int    `json:"dedupeWindow,omitempty" yaml:"dedupeWindow,omitempty" env:"DEDUPE_WINDOW"`
}

// RegistryConfig persists the arbiter's registry when BaseURL is set.
type RegistryConfig struct {
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" env:"BASE_URL"`
}

// JournalConfig records state transitions in a file queue when BaseURL is set.
type JournalConfig struct {
	BaseURL    string        `json:"baseURL,omitempty" yaml:"baseURL,omitempty" env:"BASE_URL"`
	MaxRetries int           `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" env:"MAX_RETRIES"`
	RetryDelay time.Duration `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty" env:"RETRY_DELAY"`
}

// DefaultConfig returns a Config for a single-process session over the
// in-memory bus.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{ID: "default"},
		Bus: BusConfig{
			Vendor:       BusMemory,
			Listen:       ":8080",
			QueueBuffer:  1024,
			DedupeWindow: 1024,
		},
		Settings: settings.Config{Vendor: settings.VendorMemory},
		Journal:  JournalConfig{MaxRetries: 3, RetryDelay: time.Second},
		Policy:   *policy.ToConfig(policy.Default()),
		Tracing:  tracing.Config{ServiceName: "movegate"},
	}
}

// Validate returns the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Bus.Vendor {
	case "", BusMemory:
	case BusWS:
		if c.Bus.URL == "" {
			return fmt.Errorf("bus.url is required for the %s vendor", BusWS)
		}
	default:
		return fmt.Errorf("unsupported bus vendor: %s", c.Bus.Vendor)
	}
	if c.Bus.QueueBuffer < 0 {
		return fmt.Errorf("bus.queueBuffer must be >= 0")
	}
	if c.Bus.DedupeWindow < 0 {
		return fmt.Errorf("bus.dedupeWindow must be >= 0")
	}
	if c.Journal.MaxRetries < 0 {
		return fmt.Errorf("journal.maxRetries must be >= 0")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	return c.Policy.Validate()
}

// LoadConfig reads a YAML config from URL (any afs-supported location), on
// top of DefaultConfig. ${env.KEY} expressions in the document are expanded
// and MOVEGATE_* environment variables override the result.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	ret := DefaultConfig()
	if URL != "" {
		data, err := afs.New().DownloadWithURL(ctx, URL)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
		}
		if err = yaml.Unmarshal([]byte(expand.Env(string(data))), ret); err != nil {
			return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
		}
	}
	if err := env.ParseWithOptions(ret, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
