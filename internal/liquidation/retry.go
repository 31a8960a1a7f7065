package liquidation

import "time"

// DefaultRetryBaseDelay is the base backoff between sell attempts.
const DefaultRetryBaseDelay = 1 * time.Second

// RetryPolicy bounds per-position sell attempts. The delay grows
// linearly with the attempt number: base, 2×base, 3×base, ...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the backoff to sleep after the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}
