package guard

import (
	"errors"
	"time"

	"trench-guard/internal/domain"
)

// Default monitor parameters.
const (
	DefaultMaxExternalSol  float64       = 50
	DefaultMonitorDuration time.Duration = 5 * time.Minute
	DefaultCooldown        time.Duration = 30 * time.Second
)

// Guard errors.
var (
	// ErrInvalidConfig is returned by Init for a non-positive threshold
	// or monitor duration. Rejected before any session state is created.
	ErrInvalidConfig = errors.New("invalid guard config")

	// ErrInvalidEvent is returned for a malformed buy event. The event is
	// skipped in isolation; session state is unaffected.
	ErrInvalidEvent = errors.New("invalid buy event")
)

// Config holds tunable monitor parameters. Zero fields take defaults;
// explicit negative values are rejected by Init.
type Config struct {
	MaxExternalSol  float64            // SOL threshold for triggering
	Action          domain.GuardAction // response on breach
	MonitorDuration time.Duration      // how long to monitor post-launch
	Cooldown        time.Duration      // minimum gap between emitted actions
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxExternalSol:  DefaultMaxExternalSol,
		Action:          domain.ActionStopBuying,
		MonitorDuration: DefaultMonitorDuration,
		Cooldown:        DefaultCooldown,
	}
}

// withDefaults fills zero fields of cfg from fallback.
func (cfg Config) withDefaults(fallback Config) Config {
	if cfg.MaxExternalSol == 0 {
		cfg.MaxExternalSol = fallback.MaxExternalSol
	}
	if cfg.Action == "" {
		cfg.Action = fallback.Action
	}
	if cfg.MonitorDuration == 0 {
		cfg.MonitorDuration = fallback.MonitorDuration
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = fallback.Cooldown
	}
	return cfg
}

// validate checks the effective configuration. Cooldown may be zero
// (no emission rate limit) but never negative.
func (cfg Config) validate() error {
	if cfg.MaxExternalSol <= 0 {
		return ErrInvalidConfig
	}
	if cfg.MonitorDuration <= 0 {
		return ErrInvalidConfig
	}
	if cfg.Cooldown < 0 {
		return ErrInvalidConfig
	}
	switch cfg.Action {
	case domain.ActionStopBuying, domain.ActionEmergencyExit:
	default:
		return ErrInvalidConfig
	}
	return nil
}
