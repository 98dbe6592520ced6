package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/movegate/model"
)

// Decision modes of the arbiter.
const (
	ModeAsk  = "ask"  // present every request on the decision surface (default)
	ModeAuto = "auto" // approve automatically
	ModeDeny = "deny" // deny automatically
)

// Handling of a resolution for an entity this client does not believe is Requested.
const (
	StaleApply  = "apply"  // the arbiter is authoritative (default)
	StaleIgnore = "ignore" // drop it
)

// DefaultLockWarningInterval throttles the "movement locked" warning.
const DefaultLockWarningInterval = 5 * time.Second

// Policy is the runtime form of Config.
//
//   - Mode controls how the arbiter decides (ask / auto / deny).
//   - AllowList, BlockList filter requesters regardless of Mode.
//   - Exempt lists participants that move without asking.
type Policy struct {
	Mode                string
	AllowList           []string
	BlockList           []string
	Exempt              []string
	StaleResolution     string
	LockWarningInterval time.Duration
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode                string        `json:"mode,omitempty" yaml:"mode,omitempty" env:"MODE"`
	AllowList           []string      `json:"allow,omitempty" yaml:"allow,omitempty" env:"ALLOW"`
	BlockList           []string      `json:"block,omitempty" yaml:"block,omitempty" env:"BLOCK"`
	Exempt              []string      `json:"exempt,omitempty" yaml:"exempt,omitempty" env:"EXEMPT"`
	StaleResolution     string        `json:"staleResolution,omitempty" yaml:"staleResolution,omitempty" env:"STALE_RESOLUTION"`
	LockWarningInterval time.Duration `json:"lockWarningInterval,omitempty" yaml:"lockWarningInterval,omitempty" env:"LOCK_WARNING_INTERVAL"`
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", ModeAsk, ModeAuto, ModeDeny:
	default:
		return fmt.Errorf("policy: unsupported mode %q", c.Mode)
	}
	switch c.StaleResolution {
	case "", StaleApply, StaleIgnore:
	default:
		return fmt.Errorf("policy: unsupported staleResolution %q", c.StaleResolution)
	}
	if c.LockWarningInterval < 0 {
		return fmt.Errorf("policy: lockWarningInterval must not be negative")
	}
	return nil
}

// Default returns the policy used when nothing is configured.
func Default() *Policy {
	return &Policy{Mode: ModeAsk, StaleResolution: StaleApply, LockWarningInterval: DefaultLockWarningInterval}
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:                p.Mode,
		AllowList:           append([]string(nil), p.AllowList...),
		BlockList:           append([]string(nil), p.BlockList...),
		Exempt:              append([]string(nil), p.Exempt...),
		StaleResolution:     p.StaleResolution,
		LockWarningInterval: p.LockWarningInterval,
	}
}

// FromConfig converts a Config to a Policy, filling defaults for empty fields.
func FromConfig(c *Config) *Policy {
	ret := Default()
	if c == nil {
		return ret
	}
	if c.Mode != "" {
		ret.Mode = c.Mode
	}
	if c.StaleResolution != "" {
		ret.StaleResolution = c.StaleResolution
	}
	if c.LockWarningInterval > 0 {
		ret.LockWarningInterval = c.LockWarningInterval
	}
	ret.AllowList = append([]string(nil), c.AllowList...)
	ret.BlockList = append([]string(nil), c.BlockList...)
	ret.Exempt = append([]string(nil), c.Exempt...)
	return ret
}

// IsAllowed evaluates AllowList and BlockList against a requester ID,
// case-insensitively. BlockList wins; an empty AllowList allows everyone.
func (p *Policy) IsAllowed(requesterID string) bool {
	if p == nil {
		return true
	}
	if contains(p.BlockList, requesterID) {
		return false
	}
	return len(p.AllowList) == 0 || contains(p.AllowList, requesterID)
}

// IsExempt reports whether participantID moves without approval.
func (p *Policy) IsExempt(participantID string) bool {
	return p != nil && contains(p.Exempt, participantID)
}

// Decide returns the automatic verdict for a request, if the policy makes one.
func (p *Policy) Decide(request *model.MovementRequest) (model.Verdict, bool) {
	if p == nil {
		return "", false
	}
	if !p.IsAllowed(request.RequesterID) {
		return model.VerdictDeny, true
	}
	switch p.Mode {
	case ModeAuto:
		return model.VerdictApprove, true
	case ModeDeny:
		return model.VerdictDeny, true
	}
	return "", false
}

// AppliesStale reports whether resolutions for untracked entities are applied.
func (p *Policy) AppliesStale() bool {
	return p == nil || p.StaleResolution != StaleIgnore
}

func contains(list []string, value string) bool {
	normalized := strings.ToLower(value)
	for _, candidate := range list {
		if normalized == strings.ToLower(candidate) {
			return true
		}
	}
	return false
}
