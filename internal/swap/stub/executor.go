// Package stub provides a deterministic swap executor for tests.
package stub

import (
	"context"
	"sync"

	"trench-guard/internal/swap"
)

// Outcome scripts one Execute call. Err being non-nil simulates a
// transport-level failure (the executor call itself errors).
type Outcome struct {
	Result swap.Result
	Err    error
}

// Executor implements swap.Executor with scripted per-wallet outcomes.
// Outcomes for a wallet are consumed in order; when the script runs
// out, the last outcome repeats. Wallets without a script get Default.
type Executor struct {
	mu       sync.Mutex
	scripts  map[string][]Outcome
	consumed map[string]int

	// Default is returned for wallets without a script.
	Default Outcome

	// Requests records every Execute call in order.
	Requests []swap.Request
}

// NewExecutor creates a stub executor that succeeds by default,
// returning 95% of the requested amount as output.
func NewExecutor() *Executor {
	return &Executor{
		scripts:  make(map[string][]Outcome),
		consumed: make(map[string]int),
		Default: Outcome{
			Result: swap.Result{Success: true, Signature: "StubSwapSig", OutputAmount: -1},
		},
	}
}

// Script sets the ordered outcomes for a wallet.
func (e *Executor) Script(walletAddress string, outcomes ...Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[walletAddress] = outcomes
	e.consumed[walletAddress] = 0
}

// Attempts returns the number of Execute calls seen for a wallet.
func (e *Executor) Attempts(walletAddress string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, r := range e.Requests {
		if r.Wallet == walletAddress {
			n++
		}
	}
	return n
}

// Execute replays the scripted outcome for the request's wallet.
func (e *Executor) Execute(_ context.Context, req swap.Request) (swap.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Requests = append(e.Requests, req)

	outcomes, ok := e.scripts[req.Wallet]
	if !ok || len(outcomes) == 0 {
		out := e.Default
		if out.Result.OutputAmount < 0 {
			out.Result.OutputAmount = req.Amount * 0.95
		}
		return out.Result, out.Err
	}

	idx := e.consumed[req.Wallet]
	if idx >= len(outcomes) {
		idx = len(outcomes) - 1
	} else {
		e.consumed[req.Wallet]++
	}
	out := outcomes[idx]
	return out.Result, out.Err
}
