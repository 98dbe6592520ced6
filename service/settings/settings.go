package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

const (
	// DefaultScope namespaces the feature's settings within a session.
	DefaultScope = "movement-approval"
	// EnabledKey stores the "approval required" flag.
	EnabledKey = "enabled"

	VendorMemory = "memory"
	VendorFS     = "fs"
	VendorSQLite = "sqlite"
)

// ErrUnsupportedVendor is returned by New for an unknown vendor.
var ErrUnsupportedVendor = errors.New("settings: unsupported vendor")

// Store is a session-scoped key-value settings store.
type Store interface {
	// Get returns the value stored under scope/key and whether it exists.
	Get(ctx context.Context, scope, key string) (string, bool, error)
	// Set stores value under scope/key.
	Set(ctx context.Context, scope, key, value string) error
}

// Config selects and configures a settings store.
type Config struct {
	Vendor  string `json:"vendor,omitempty" yaml:"vendor,omitempty" env:"VENDOR"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" env:"BASE_URL"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty" env:"PATH"`
}

// Validate checks that the vendor has what it needs.
func (c *Config) Validate() error {
	switch c.Vendor {
	case "", VendorMemory:
		return nil
	case VendorFS:
		if c.BaseURL == "" {
			return fmt.Errorf("settings: fs vendor requires baseURL")
		}
	case VendorSQLite:
		if c.Path == "" {
			return fmt.Errorf("settings: sqlite vendor requires path")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedVendor, c.Vendor)
	}
	return nil
}

// New creates the store configured by c.
func New(c *Config) (Store, error) {
	if c == nil {
		return NewMemory(), nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Vendor {
	case VendorFS:
		return NewFS(c.BaseURL), nil
	case VendorSQLite:
		return OpenSQLite(c.Path)
	default:
		return NewMemory(), nil
	}
}

// Flag is a boolean setting; a missing or malformed value reads as false.
type Flag struct {
	Store Store
	Scope string
	Key   string
}

// EnabledFlag returns the "approval required" flag backed by store.
func EnabledFlag(store Store) *Flag {
	return &Flag{Store: store, Scope: DefaultScope, Key: EnabledKey}
}

// Enabled reads the flag.
func (f *Flag) Enabled(ctx context.Context) (bool, error) {
	value, ok, err := f.Store.Get(ctx, f.Scope, f.Key)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, nil
	}
	return enabled, nil
}

// Set writes the flag.
func (f *Flag) Set(ctx context.Context, enabled bool) error {
	return f.Store.Set(ctx, f.Scope, f.Key, strconv.FormatBool(enabled))
}
