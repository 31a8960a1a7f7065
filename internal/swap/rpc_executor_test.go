package swap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trench-guard/internal/solana"
	"trench-guard/internal/solana/stub"
)

const testWallet = "Wallet11111111111111111111111111111111111111"

// confirmedTx builds a landed swap transaction crediting the wallet
// with the given SOL amount.
func confirmedTx(signature string, solGained float64) *solana.Transaction {
	pre := uint64(1 * solana.LamportsPerSol)
	return &solana.Transaction{
		Signature: signature,
		Message:   &solana.TransactionMessage{AccountKeys: []string{testWallet, "Pool1"}},
		Meta: &solana.TransactionMeta{
			PreBalances:  []uint64{pre, 0},
			PostBalances: []uint64{pre + uint64(solGained*solana.LamportsPerSol), 0},
		},
	}
}

func swapServer(t *testing.T, resp swapAPIResponse) (*httptest.Server, *swapAPIRequest) {
	t.Helper()
	var captured swapAPIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestExecute_Success(t *testing.T) {
	srv, captured := swapServer(t, swapAPIResponse{Signature: "SwapSig1", OutputAmount: 1.2})

	rpc := stub.NewRPCClient()
	rpc.AddTransaction(confirmedTx("SwapSig1", 1.5))

	executor := NewRPCExecutor(srv.URL, rpc)
	res, err := executor.Execute(context.Background(), Request{
		Wallet:      testWallet,
		TokenIn:     "Mint1",
		TokenOut:    "SOL",
		Amount:      1000,
		SlippageBps: 100,
		PriorityFee: 0.001,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "SwapSig1", res.Signature)
	// The measured balance delta wins over the endpoint's quote.
	assert.InDelta(t, 1.5, res.OutputAmount, 1e-9)

	// Wire shape.
	assert.Equal(t, testWallet, captured.Wallet)
	assert.Equal(t, "Mint1", captured.InputMint)
	assert.Equal(t, "SOL", captured.OutputMint)
	assert.Equal(t, float64(1000), captured.Amount)
	assert.Equal(t, 100, captured.SlippageBps)
}

func TestExecute_FallsBackToQuotedAmount(t *testing.T) {
	srv, _ := swapServer(t, swapAPIResponse{Signature: "SwapSig1", OutputAmount: 1.2})

	// Confirmed transaction with no positive wallet delta.
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(confirmedTx("SwapSig1", 0))

	executor := NewRPCExecutor(srv.URL, rpc)
	res, err := executor.Execute(context.Background(), Request{Wallet: testWallet})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.InDelta(t, 1.2, res.OutputAmount, 1e-9)
}

func TestExecute_SwapLevelError(t *testing.T) {
	srv, _ := swapServer(t, swapAPIResponse{Error: "no route for mint"})

	executor := NewRPCExecutor(srv.URL, stub.NewRPCClient())
	res, err := executor.Execute(context.Background(), Request{Wallet: testWallet})

	// Swap-level failures are results, not transport errors.
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "no route for mint", res.Err)
}

func TestExecute_MissingSignature(t *testing.T) {
	srv, _ := swapServer(t, swapAPIResponse{OutputAmount: 1.2})

	executor := NewRPCExecutor(srv.URL, stub.NewRPCClient())
	res, err := executor.Execute(context.Background(), Request{Wallet: testWallet})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "swap endpoint returned no signature", res.Err)
}

func TestExecute_EndpointStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	executor := NewRPCExecutor(srv.URL, stub.NewRPCClient())
	_, err := executor.Execute(context.Background(), Request{Wallet: testWallet})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestExecute_OnChainFailure(t *testing.T) {
	srv, _ := swapServer(t, swapAPIResponse{Signature: "SwapSig1", OutputAmount: 1.2})

	rpc := stub.NewRPCClient()
	tx := confirmedTx("SwapSig1", 1.5)
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}
	rpc.AddTransaction(tx)

	executor := NewRPCExecutor(srv.URL, rpc)
	res, err := executor.Execute(context.Background(), Request{Wallet: testWallet})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "failed on-chain")
}

func TestExecute_PartialFill(t *testing.T) {
	srv, _ := swapServer(t, swapAPIResponse{
		Signature:      "SwapSig1",
		OutputAmount:   0.8,
		PartialFill:    true,
		PercentageSold: 80,
	})

	rpc := stub.NewRPCClient()
	rpc.AddTransaction(confirmedTx("SwapSig1", 0.8))

	executor := NewRPCExecutor(srv.URL, rpc)
	res, err := executor.Execute(context.Background(), Request{Wallet: testWallet})
	require.NoError(t, err)

	assert.False(t, res.Success, "a partial fill is never a full success")
	assert.True(t, res.PartialFill)
	assert.Equal(t, float64(80), res.PercentageSold)
}
