package guard

import "trench-guard/internal/domain"

// Hooks receives guard lifecycle notifications. Implementations are
// supplied at registry construction and invoked synchronously from the
// call that caused the transition; they must not block for long.
type Hooks interface {
	// OnThresholdBreached fires exactly once per session, at the
	// Armed → Triggered transition.
	OnThresholdBreached(tokenAddress string, alert domain.ExternalBuyAlert, action domain.GuardAction)

	// OnGuardStopped fires once per session with its final snapshot,
	// on manual stop, auto-expiry, or replacement by a new session.
	OnGuardStopped(tokenAddress string, final Snapshot)
}

// NopHooks discards all notifications.
type NopHooks struct{}

func (NopHooks) OnThresholdBreached(string, domain.ExternalBuyAlert, domain.GuardAction) {}
func (NopHooks) OnGuardStopped(string, Snapshot)                                         {}
