package liquidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trench-guard/internal/domain"
	"trench-guard/internal/swap"
	"trench-guard/internal/swap/stub"
)

func position(wallet string, balance float64) domain.Position {
	return domain.Position{
		Wallet:       wallet,
		TokenAddress: "TokenMint111",
		TokenSymbol:  "TST",
		Balance:      balance,
	}
}

func fastEngine(executor swap.Executor, opts ...Option) *Engine {
	return NewEngine(executor, append([]Option{WithRetryBaseDelay(time.Millisecond)}, opts...)...)
}

func TestSellAll_AllSucceed(t *testing.T) {
	exec := stub.NewExecutor()
	engine := fastEngine(exec)

	positions := []domain.Position{
		position("W1", 1000),
		position("W2", 2000),
		position("W3", 500),
	}

	summary := engine.SellAll(context.Background(), positions, Config{})

	assert.Equal(t, 3, summary.TotalPositions)
	assert.Equal(t, 3, summary.SoldCount)
	assert.Equal(t, 0, summary.FailedCount)
	assert.Equal(t, 0, summary.PartialCount)
	assert.Empty(t, summary.Failures)
	assert.InDelta(t, 3500*0.95, summary.TotalSolReceived, 1e-9)

	// Results preserve input order.
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "W1", summary.Results[0].Wallet)
	assert.Equal(t, "W3", summary.Results[2].Wallet)
}

func TestSellAll_ExcludedWallets(t *testing.T) {
	exec := stub.NewExecutor()
	engine := fastEngine(exec)

	positions := []domain.Position{
		position("Dev1", 1000),
		position("W2", 2000),
	}

	// Exclusion matching is case-insensitive.
	summary := engine.SellAll(context.Background(), positions, Config{
		ExcludedWallets: []string{"DEV1"},
	})

	assert.Equal(t, 1, summary.TotalPositions)
	assert.Equal(t, 1, summary.SoldCount)
	assert.Equal(t, 0, exec.Attempts("Dev1"), "excluded wallet must never reach the executor")
	assert.Equal(t, 1, exec.Attempts("W2"))
}

func TestSellAll_RetryThenSuccess(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1",
		stub.Outcome{Err: errors.New("rpc timeout")},
		stub.Outcome{Result: swap.Result{Err: "blockhash expired"}},
		stub.Outcome{Result: swap.Result{Success: true, Signature: "Sig3", OutputAmount: 1.5}},
	)
	engine := fastEngine(exec)

	summary := engine.SellAll(context.Background(), []domain.Position{position("W1", 1000)}, Config{})

	assert.Equal(t, 3, exec.Attempts("W1"))
	assert.Equal(t, 1, summary.SoldCount)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, "Sig3", summary.Results[0].TxSignature)
	assert.Equal(t, 1.5, summary.Results[0].SolReceived)
}

func TestSellAll_RetriesExhausted(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1", stub.Outcome{Result: swap.Result{Err: "no route found"}})
	engine := fastEngine(exec)

	summary := engine.SellAll(context.Background(), []domain.Position{position("W1", 1000)}, Config{})

	// Exactly MaxRetries attempts, never more.
	assert.Equal(t, DefaultMaxRetries, exec.Attempts("W1"))
	assert.Equal(t, 1, summary.FailedCount)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "no route found", summary.Failures[0].Error)
}

func TestSellAll_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		outcome stub.Outcome
		wantErr string
	}{
		{"transport error", stub.Outcome{Err: errors.New("connection refused")}, "connection refused"},
		{"blank transport error", stub.Outcome{Err: errors.New("")}, "Unknown error"},
		{"structured failure", stub.Outcome{Result: swap.Result{Err: "slippage exceeded"}}, "slippage exceeded"},
		{"blank structured failure", stub.Outcome{Result: swap.Result{}}, "Swap failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := stub.NewExecutor()
			exec.Script("W1", tt.outcome)
			engine := fastEngine(exec)

			summary := engine.SellAll(context.Background(), []domain.Position{position("W1", 1000)}, Config{MaxRetries: 1})
			require.Len(t, summary.Failures, 1)
			assert.Equal(t, tt.wantErr, summary.Failures[0].Error)
		})
	}
}

func TestSellAll_PartialAboveThreshold(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1", stub.Outcome{Result: swap.Result{
		PartialFill:    true,
		PercentageSold: 95,
		OutputAmount:   0.9,
		Signature:      "PartialSig",
	}})
	engine := fastEngine(exec)

	summary := engine.SellAll(context.Background(), []domain.Position{position("W1", 1000)}, Config{})

	// A partial fill is terminal: no retry.
	assert.Equal(t, 1, exec.Attempts("W1"))
	assert.Equal(t, 1, summary.PartialCount)
	assert.Equal(t, 0, summary.SoldCount)
	assert.Equal(t, 0, summary.FailedCount)
	assert.Empty(t, summary.Failures, "95 percent sold counts as success")

	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	assert.True(t, res.Success)
	assert.True(t, res.PartialSell)
	assert.Equal(t, float64(95), res.PercentageSold)
	assert.Equal(t, 0.9, res.SolReceived)
}

func TestSellAll_PartialBelowThreshold(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1", stub.Outcome{Result: swap.Result{
		PartialFill:    true,
		PercentageSold: 40,
		OutputAmount:   0.3,
	}})
	engine := fastEngine(exec)

	summary := engine.SellAll(context.Background(), []domain.Position{position("W1", 1000)}, Config{})

	assert.Equal(t, 1, summary.PartialCount)
	assert.Equal(t, 0, summary.SoldCount)
	assert.Equal(t, 0, summary.FailedCount)
	require.Len(t, summary.Failures, 1, "below-threshold partial is reported as a failure")
	assert.False(t, summary.Failures[0].Success)
	assert.True(t, summary.Failures[0].PartialSell)
	// Proceeds still count toward the total.
	assert.Equal(t, 0.3, summary.TotalSolReceived)
}

func TestSellAll_CountsSumToTotal(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("Fail1", stub.Outcome{Result: swap.Result{Err: "no route"}})
	exec.Script("Part1", stub.Outcome{Result: swap.Result{PartialFill: true, PercentageSold: 50, OutputAmount: 0.1}})
	engine := fastEngine(exec)

	positions := []domain.Position{
		position("Ok1", 100),
		position("Fail1", 100),
		position("Part1", 100),
		position("Ok2", 100),
	}
	summary := engine.SellAll(context.Background(), positions, Config{MaxRetries: 1})

	assert.Equal(t, summary.TotalPositions, summary.SoldCount+summary.PartialCount+summary.FailedCount)
	assert.Equal(t, 2, summary.SoldCount)
	assert.Equal(t, 1, summary.PartialCount)
	assert.Equal(t, 1, summary.FailedCount)

	var sum float64
	for _, r := range summary.Results {
		sum += r.SolReceived
	}
	assert.InDelta(t, sum, summary.TotalSolReceived, 1e-9)
}

func TestSellAll_NonPositiveBalance(t *testing.T) {
	exec := stub.NewExecutor()
	engine := fastEngine(exec)

	summary := engine.SellAll(context.Background(), []domain.Position{
		position("W1", 0),
		position("W2", -5),
	}, Config{})

	assert.Equal(t, 2, summary.FailedCount)
	assert.Equal(t, 0, exec.Attempts("W1"), "invalid positions must not reach the executor")
	require.Len(t, summary.Failures, 2)
	assert.Equal(t, "invalid position: non-positive balance", summary.Failures[0].Error)
}

func TestSellAll_FailureDoesNotStopSweep(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1", stub.Outcome{Err: errors.New("connection refused")})
	engine := fastEngine(exec)

	summary := engine.SellAll(context.Background(), []domain.Position{
		position("W1", 100),
		position("W2", 100),
	}, Config{MaxRetries: 1})

	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 1, summary.SoldCount)
	require.Len(t, summary.Results, 2, "sweep must run to completion past failures")
}

func TestSellAll_Progress(t *testing.T) {
	exec := stub.NewExecutor()

	type call struct {
		completed, total int
		wallet           string
	}
	var calls []call
	engine := fastEngine(exec, WithProgress(func(completed, total int, result domain.SellResult) {
		calls = append(calls, call{completed, total, result.Wallet})
	}))

	engine.SellAll(context.Background(), []domain.Position{
		position("W1", 100),
		position("W2", 100),
	}, Config{})

	require.Len(t, calls, 2)
	assert.Equal(t, call{1, 2, "W1"}, calls[0])
	assert.Equal(t, call{2, 2, "W2"}, calls[1])
}

func TestSellAll_CancelledContextSkipsBackoff(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1", stub.Outcome{Result: swap.Result{Err: "congested"}})

	// With an hour-long base delay, only a cut-short backoff lets this
	// finish; cancellation must not abort the remaining attempts.
	engine := NewEngine(exec, WithRetryBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan domain.SellAllSummary, 1)
	go func() {
		done <- engine.SellAll(ctx, []domain.Position{position("W1", 100)}, Config{})
	}()

	select {
	case summary := <-done:
		assert.Equal(t, DefaultMaxRetries, exec.Attempts("W1"))
		assert.Equal(t, 1, summary.FailedCount)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not finish with cancelled context")
	}
}

func TestEmergencyExit(t *testing.T) {
	exec := stub.NewExecutor()
	exec.Script("W1", stub.Outcome{Result: swap.Result{Err: "congested"}})
	exec.Script("W2", stub.Outcome{Result: swap.Result{Err: "congested"}})
	exec.Script("W3", stub.Outcome{Result: swap.Result{Err: "congested"}})
	engine := fastEngine(exec)

	summary := engine.EmergencyExit(context.Background(), []domain.Position{
		position("W1", 100),
		position("W2", 100),
		position("W3", 100),
	}, 0)

	// Speed over completeness: a single attempt per position.
	assert.Equal(t, 1, exec.Attempts("W1"))
	assert.Equal(t, 1, exec.Attempts("W2"))
	assert.Equal(t, 1, exec.Attempts("W3"))
	assert.Equal(t, 3, summary.FailedCount)

	require.NotEmpty(t, exec.Requests)
	req := exec.Requests[0]
	assert.Equal(t, EmergencySlippageBps, req.SlippageBps)
	assert.Equal(t, EmergencyPriorityFee, req.PriorityFee)
}

func TestEmergencyExit_CustomPriorityFee(t *testing.T) {
	exec := stub.NewExecutor()
	engine := fastEngine(exec)

	engine.EmergencyExit(context.Background(), []domain.Position{position("W1", 100)}, 0.05)

	require.NotEmpty(t, exec.Requests)
	assert.Equal(t, 0.05, exec.Requests[0].PriorityFee)
}

func TestSellAll_RequestShape(t *testing.T) {
	exec := stub.NewExecutor()
	engine := fastEngine(exec)

	engine.SellAll(context.Background(), []domain.Position{position("W1", 1234)}, Config{})

	require.Len(t, exec.Requests, 1)
	req := exec.Requests[0]
	assert.Equal(t, "W1", req.Wallet)
	assert.Equal(t, "TokenMint111", req.TokenIn)
	assert.Equal(t, "SOL", req.TokenOut)
	assert.Equal(t, float64(1234), req.Amount)
	assert.Equal(t, DefaultSlippageBps, req.SlippageBps)
}
