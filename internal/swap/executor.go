// Package swap defines the swap-executor capability boundary used by
// the liquidation engine. The engine never constructs transactions
// itself; pool discovery, AMM math and transaction building live behind
// the Executor interface.
package swap

import "context"

// Request describes one position-to-SOL swap.
type Request struct {
	Wallet      string  // signing wallet address
	TokenIn     string  // token mint being sold
	TokenOut    string  // output token, "SOL" for liquidation
	Amount      float64 // token amount to sell
	SlippageBps int     // slippage tolerance in basis points
	PriorityFee float64 // SOL priority fee
}

// Result is the structured outcome of a swap attempt. A transport-level
// failure is reported as a Go error from Execute instead.
type Result struct {
	Success        bool
	Signature      string
	OutputAmount   float64 // SOL received
	PartialFill    bool
	PercentageSold float64 // percent of Amount actually sold
	Err            string  // failure reason when Success is false
}

// Executor performs swaps. Implementations: RPCExecutor for on-chain
// execution, stub.Executor for deterministic tests.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}
