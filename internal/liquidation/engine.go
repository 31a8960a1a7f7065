// Package liquidation implements the sell-all sweep: sequential
// liquidation of positions through an injected swap executor, with
// per-position retry and partial-fill classification.
package liquidation

import (
	"context"
	"time"

	"trench-guard/internal/domain"
	"trench-guard/internal/swap"
	"trench-guard/internal/wallet"
)

// ProgressFunc observes sweep progress. Invoked synchronously after
// every position, regardless of outcome.
type ProgressFunc func(completed, total int, result domain.SellResult)

// Engine executes liquidation sweeps. Positions are processed strictly
// sequentially to bound external call rate and keep result ordering
// deterministic; this is a policy choice, not a limitation.
type Engine struct {
	executor  swap.Executor
	progress  ProgressFunc
	baseDelay time.Duration
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress sets the progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithRetryBaseDelay overrides the base backoff between attempts.
// Used by tests to avoid real sleeps.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.baseDelay = d
	}
}

// WithClock overrides the time source used for sweep duration.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine around the given swap executor.
func NewEngine(executor swap.Executor, opts ...Option) *Engine {
	e := &Engine{
		executor:  executor,
		baseDelay: DefaultRetryBaseDelay,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SellAll sweeps the positions, skipping excluded wallets entirely.
// The sweep always runs to completion over its position list; per-
// position failures are isolated and reported in the summary, never
// raised. ctx is consulted only to cut retry backoff short.
func (e *Engine) SellAll(ctx context.Context, positions []domain.Position, cfg Config) domain.SellAllSummary {
	effective := cfg.withDefaults()
	start := e.now()

	excluded := make(map[string]struct{}, len(effective.ExcludedWallets))
	for _, w := range effective.ExcludedWallets {
		excluded[wallet.Normalize(w)] = struct{}{}
	}

	var targets []domain.Position
	for _, p := range positions {
		if _, skip := excluded[wallet.Normalize(p.Wallet)]; skip {
			continue
		}
		targets = append(targets, p)
	}

	summary := domain.SellAllSummary{
		TotalPositions: len(targets),
		Results:        make([]domain.SellResult, 0, len(targets)),
	}

	for i, pos := range targets {
		result := e.sellPosition(ctx, pos, effective)
		summary.Results = append(summary.Results, result)
		summary.TotalSolReceived += result.SolReceived

		// Counts are disjoint: a below-threshold partial stays a
		// partial, so the three counts always sum to TotalPositions.
		switch {
		case result.PartialSell:
			summary.PartialCount++
		case result.Success:
			summary.SoldCount++
		default:
			summary.FailedCount++
		}
		if !result.Success {
			summary.Failures = append(summary.Failures, result)
		}

		if e.progress != nil {
			e.progress(i+1, len(targets), result)
		}
	}

	summary.DurationMs = e.now().Sub(start).Milliseconds()
	return summary
}

// EmergencyExit is the speed-over-completeness preset: wider slippage,
// single attempt per position. Prefer getting something out immediately
// over exhausting retries during a panic exit.
func (e *Engine) EmergencyExit(ctx context.Context, positions []domain.Position, priorityFee float64) domain.SellAllSummary {
	if priorityFee == 0 {
		priorityFee = EmergencyPriorityFee
	}
	return e.SellAll(ctx, positions, Config{
		PriorityFee: priorityFee,
		SlippageBps: EmergencySlippageBps,
		MaxRetries:  EmergencyMaxRetries,
	})
}

// sellPosition liquidates one position with retry. Full successes and
// partial fills are terminal; a partial fill means liquidity ran out,
// so retrying risks worse slippage for little upside.
func (e *Engine) sellPosition(ctx context.Context, pos domain.Position, cfg Config) domain.SellResult {
	result := domain.SellResult{Wallet: pos.Wallet}

	if pos.Balance <= 0 {
		result.Error = "invalid position: non-positive balance"
		return result
	}

	policy := RetryPolicy{MaxAttempts: cfg.MaxRetries, BaseDelay: e.baseDelay}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		res, err := e.executor.Execute(ctx, swap.Request{
			Wallet:      pos.Wallet,
			TokenIn:     pos.TokenAddress,
			TokenOut:    "SOL",
			Amount:      pos.Balance,
			SlippageBps: cfg.SlippageBps,
			PriorityFee: cfg.PriorityFee,
		})

		if err != nil {
			// Transport-level failure; retried like any other.
			if attempt == policy.MaxAttempts {
				msg := err.Error()
				if msg == "" {
					msg = "Unknown error"
				}
				result.Error = msg
				return result
			}
		} else {
			if res.Success {
				result.Success = true
				result.TxSignature = res.Signature
				result.SolReceived = res.OutputAmount
				return result
			}

			if res.PartialFill && res.PercentageSold > 0 {
				result.Success = res.PercentageSold >= cfg.PartialSellThreshold
				result.PartialSell = true
				result.PercentageSold = res.PercentageSold
				result.SolReceived = res.OutputAmount
				result.TxSignature = res.Signature
				return result
			}

			if attempt == policy.MaxAttempts {
				if res.Err != "" {
					result.Error = res.Err
				} else {
					result.Error = "Swap failed"
				}
				return result
			}
		}

		// Backoff before the next attempt; a cancelled ctx skips the
		// wait but never aborts the sweep.
		select {
		case <-time.After(policy.Delay(attempt)):
		case <-ctx.Done():
		}
	}

	return result
}
