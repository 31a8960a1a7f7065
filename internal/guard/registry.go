// Package guard implements the launch-protection monitor: per-token
// sessions that accumulate non-whitelisted buy volume and emit a
// protective action once a configured SOL threshold is breached.
package guard

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"trench-guard/internal/domain"
)

// Registry owns the token → session table. It supports concurrent
// insert/lookup/remove; per-token processing is serialized by each
// session's own mutex. Construct one per monitoring scope — there is
// no package-level instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	hooks    Hooks
	now      func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source. Used by tests to control
// cooldown windows and alert timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry delivering notifications to hooks.
// Pass NopHooks when no observer is needed.
func NewRegistry(hooks Hooks, opts ...RegistryOption) *Registry {
	if hooks == nil {
		hooks = NopHooks{}
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		hooks:    hooks,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init arms a new monitoring session for the plan's token, replacing
// any prior session for that token (the replaced session is stopped and
// its stop hook fires with its final snapshot). An auto-stop timer
// fires after the configured monitor duration unless Stop is called
// first.
func (r *Registry) Init(plan domain.LaunchPlan, cfg Config) (Snapshot, error) {
	effective := cfg.withDefaults(DefaultConfig())
	if err := effective.validate(); err != nil {
		return Snapshot{}, fmt.Errorf("init guard for %s: %w", plan.TokenAddress, err)
	}
	if plan.TokenAddress == "" {
		return Snapshot{}, fmt.Errorf("init guard: %w: empty token address", ErrInvalidConfig)
	}

	s := newSession(plan, effective)

	r.mu.Lock()
	old := r.sessions[plan.TokenAddress]
	r.sessions[plan.TokenAddress] = s
	r.mu.Unlock()

	if old != nil {
		r.finalize(old)
	}

	// The expiry callback stops only the session it was armed for;
	// a replaced session's timer finds a different pointer and is inert.
	s.mu.Lock()
	s.timer = time.AfterFunc(effective.MonitorDuration, func() {
		r.stopSession(plan.TokenAddress, s)
	})
	if s.state == domain.GuardStopped {
		// Stopped between registration and timer arm.
		s.timer.Stop()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return snap, nil
}

// ProcessBuyEvent feeds one observed buy into the token's session.
// It returns the protective action at the Armed → Triggered transition
// and an empty action otherwise. Missing session, non-Armed session and
// whitelisted buyer are all soft no-ops. A malformed event returns
// ErrInvalidEvent and leaves all state untouched.
//
// cfg overrides are applied per call on top of the session's captured
// config; pass the zero Config to use the session config unchanged.
func (r *Registry) ProcessBuyEvent(tokenAddress string, ev domain.BuyEvent, cfg Config) (domain.GuardAction, error) {
	if ev.Wallet == "" || ev.SolAmount <= 0 {
		return "", fmt.Errorf("process buy event for %s: %w", tokenAddress, ErrInvalidEvent)
	}

	r.mu.RLock()
	s := r.sessions[tokenAddress]
	r.mu.RUnlock()
	if s == nil {
		return "", nil
	}

	action, alert := s.processEvent(ev, cfg.withDefaults(s.cfg), r.now())
	if action == "" {
		return "", nil
	}

	// Hook fires after the session mutex is released so observers may
	// call back into the registry (e.g. to start a liquidation sweep).
	r.hooks.OnThresholdBreached(tokenAddress, *alert, action)
	return action, nil
}

// Status returns a read-only snapshot, or nil when no session exists.
func (r *Registry) Status(tokenAddress string) *Snapshot {
	r.mu.RLock()
	s := r.sessions[tokenAddress]
	r.mu.RUnlock()
	if s == nil {
		return nil
	}
	snap := s.snapshot()
	return &snap
}

// Stop tears down the token's session: terminal state, registry
// removal, timer cancellation, stop hook with the final snapshot.
// Idempotent; a no-op when no session exists.
func (r *Registry) Stop(tokenAddress string) {
	r.mu.Lock()
	s := r.sessions[tokenAddress]
	if s != nil {
		delete(r.sessions, tokenAddress)
	}
	r.mu.Unlock()

	if s != nil {
		r.finalize(s)
	}
}

// stopSession is the auto-expiry path: it removes the session only if
// the registry still maps the token to this exact session.
func (r *Registry) stopSession(tokenAddress string, s *Session) {
	r.mu.Lock()
	if r.sessions[tokenAddress] != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, tokenAddress)
	r.mu.Unlock()

	r.finalize(s)
}

// finalize transitions a removed session to Stopped and fires the stop
// hook exactly once.
func (r *Registry) finalize(s *Session) {
	s.mu.Lock()
	if s.state == domain.GuardStopped {
		s.mu.Unlock()
		return
	}
	s.state = domain.GuardStopped
	if s.timer != nil {
		s.timer.Stop()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	r.hooks.OnGuardStopped(s.tokenAddress, snap)
}

// IsWhitelisted reports whether the wallet is exempt from external
// volume accounting. False when no session exists.
func (r *Registry) IsWhitelisted(tokenAddress, walletAddress string) bool {
	r.mu.RLock()
	s := r.sessions[tokenAddress]
	r.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.isWhitelisted(walletAddress)
}

// AddToWhitelist adds a wallet to an active session's whitelist.
// The only permitted whitelist mutation after creation; idempotent.
// Returns false when no session exists.
func (r *Registry) AddToWhitelist(tokenAddress, walletAddress string) bool {
	r.mu.RLock()
	s := r.sessions[tokenAddress]
	r.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.addToWhitelist(walletAddress)
}

// CheckThreshold is a pure read of the breach condition. For a missing
// session it reports breached=false with zero external volume.
func (r *Registry) CheckThreshold(tokenAddress string, cfg Config) domain.ThresholdCheck {
	r.mu.RLock()
	s := r.sessions[tokenAddress]
	r.mu.RUnlock()

	if s == nil {
		effective := cfg.withDefaults(DefaultConfig())
		return domain.ThresholdCheck{Breached: false, ExternalSol: 0, Threshold: effective.MaxExternalSol}
	}

	effective := cfg.withDefaults(s.cfg)
	s.mu.Lock()
	total := s.externalSolTotal
	s.mu.Unlock()

	return domain.ThresholdCheck{
		Breached:    total >= effective.MaxExternalSol,
		ExternalSol: total,
		Threshold:   effective.MaxExternalSol,
	}
}

// Stats derives aggregates from the token's alert log. Nil when no
// session exists or the log is empty.
func (r *Registry) Stats(tokenAddress string) *domain.GuardStats {
	r.mu.RLock()
	s := r.sessions[tokenAddress]
	r.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.stats()
}

// ActiveTokens lists tokens with a registered session, sorted for
// deterministic output.
func (r *Registry) ActiveTokens() []string {
	r.mu.RLock()
	tokens := make([]string, 0, len(r.sessions))
	for t := range r.sessions {
		tokens = append(tokens, t)
	}
	r.mu.RUnlock()

	sort.Strings(tokens)
	return tokens
}
