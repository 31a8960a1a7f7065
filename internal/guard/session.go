package guard

import (
	"sort"
	"sync"
	"time"

	"trench-guard/internal/domain"
	"trench-guard/internal/wallet"
)

// Session is the per-token monitoring state machine.
// Lifecycle: Armed → Triggered (one-shot), Armed/Triggered → Stopped
// (terminal). All mutation goes through the registry; the session mutex
// makes the volume read-modify-write and alert append atomic per token.
type Session struct {
	mu sync.Mutex

	tokenAddress     string
	state            domain.GuardState
	whitelist        map[string]struct{} // normalized wallet addresses
	externalSolTotal float64
	alerts           []domain.ExternalBuyAlert
	lastActionTime   int64 // Unix ms of last emitted action
	actionTriggered  bool
	cfg              Config // effective config captured at Init

	// timer is the auto-stop handle; cancelled on manual stop so a
	// stale expiry never acts on a replaced session.
	timer *time.Timer
}

// Snapshot is a read-only copy of session state.
type Snapshot struct {
	TokenAddress     string
	State            domain.GuardState
	ExternalSolTotal float64
	Whitelist        []string // normalized, sorted
	Alerts           []domain.ExternalBuyAlert
	LastActionTime   int64
	ActionTriggered  bool
	Config           Config
}

// newSession builds a session from a launch plan. The whitelist is the
// union of dev, funder, sniper and known-bot wallets, case-normalized.
func newSession(plan domain.LaunchPlan, cfg Config) *Session {
	wl := make(map[string]struct{})
	addWallet := func(addr string) {
		if norm := wallet.Normalize(addr); norm != "" {
			wl[norm] = struct{}{}
		}
	}
	addWallet(plan.DevWallet)
	addWallet(plan.FunderWallet)
	for _, w := range plan.SniperWallets {
		addWallet(w)
	}
	for _, w := range plan.BotWallets {
		addWallet(w)
	}

	return &Session{
		tokenAddress: plan.TokenAddress,
		state:        domain.GuardArmed,
		whitelist:    wl,
		cfg:          cfg,
	}
}

// processEvent applies one buy event under the session mutex. It returns
// the configured action and the triggering alert at the Armed → Triggered
// transition, or an empty action otherwise. Events for sessions that are
// not Armed (including already-triggered ones) are a full no-op.
func (s *Session) processEvent(ev domain.BuyEvent, cfg Config, now time.Time) (domain.GuardAction, *domain.ExternalBuyAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.GuardArmed {
		return "", nil
	}
	if _, ok := s.whitelist[wallet.Normalize(ev.Wallet)]; ok {
		return "", nil
	}

	s.externalSolTotal += ev.SolAmount

	alert := domain.ExternalBuyAlert{
		Wallet:                ev.Wallet,
		SolAmount:             ev.SolAmount,
		CumulativeExternalSol: s.externalSolTotal,
		Threshold:             cfg.MaxExternalSol,
		PercentageOfThreshold: s.externalSolTotal / cfg.MaxExternalSol * 100,
		Timestamp:             now.UnixMilli(),
		IsWhitelisted:         false,
	}
	s.alerts = append(s.alerts, alert)

	// Cooldown gates action emission only, never volume accumulation.
	nowMs := now.UnixMilli()
	if nowMs-s.lastActionTime < cfg.Cooldown.Milliseconds() {
		return "", nil
	}

	if s.externalSolTotal >= cfg.MaxExternalSol {
		s.state = domain.GuardTriggered
		s.actionTriggered = true
		s.lastActionTime = nowMs
		return cfg.Action, &alert
	}

	return "", nil
}

// snapshotLocked copies session state. Caller holds s.mu.
func (s *Session) snapshotLocked() Snapshot {
	wl := make([]string, 0, len(s.whitelist))
	for w := range s.whitelist {
		wl = append(wl, w)
	}
	sort.Strings(wl)

	alerts := make([]domain.ExternalBuyAlert, len(s.alerts))
	copy(alerts, s.alerts)

	return Snapshot{
		TokenAddress:     s.tokenAddress,
		State:            s.state,
		ExternalSolTotal: s.externalSolTotal,
		Whitelist:        wl,
		Alerts:           alerts,
		LastActionTime:   s.lastActionTime,
		ActionTriggered:  s.actionTriggered,
		Config:           s.cfg,
	}
}

// snapshot returns a read-only copy of session state.
func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// stats derives aggregate numbers from the alert log. Returns nil when
// no alert has been recorded.
func (s *Session) stats() *domain.GuardStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.alerts) == 0 {
		return nil
	}

	unique := make(map[string]struct{})
	var largest, sum float64
	for _, a := range s.alerts {
		unique[wallet.Normalize(a.Wallet)] = struct{}{}
		if a.SolAmount > largest {
			largest = a.SolAmount
		}
		sum += a.SolAmount
	}

	return &domain.GuardStats{
		TotalAlerts:   len(s.alerts),
		LargestBuy:    largest,
		AvgBuySize:    sum / float64(len(s.alerts)),
		UniqueWallets: len(unique),
	}
}

// isWhitelisted reports membership using normalized comparison.
func (s *Session) isWhitelisted(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.whitelist[wallet.Normalize(addr)]
	return ok
}

// addToWhitelist adds a wallet post-creation. Idempotent; exists for
// emergency correction of a mis-tagged wallet.
func (s *Session) addToWhitelist(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	norm := wallet.Normalize(addr)
	if norm == "" {
		return false
	}
	s.whitelist[norm] = struct{}{}
	return true
}
