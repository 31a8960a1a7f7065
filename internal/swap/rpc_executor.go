package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trench-guard/internal/solana"
)

// Confirmation polling bounds.
const (
	confirmAttempts = 5
	confirmDelay    = 2 * time.Second
)

// RPCExecutor performs on-chain swaps through the wallet engine's swap
// endpoint and verifies the landed transaction via Solana RPC. Pool
// discovery, AMM routing and transaction signing stay behind the swap
// endpoint; this executor only submits requests and measures outcomes.
type RPCExecutor struct {
	swapEndpoint string
	client       *http.Client
	rpc          solana.RPCClient
}

// NewRPCExecutor creates an executor against the given swap endpoint.
func NewRPCExecutor(swapEndpoint string, rpc solana.RPCClient) *RPCExecutor {
	return &RPCExecutor{
		swapEndpoint: swapEndpoint,
		client:       &http.Client{Timeout: 30 * time.Second},
		rpc:          rpc,
	}
}

// swapAPIRequest is the wire request for the swap endpoint.
type swapAPIRequest struct {
	Wallet      string  `json:"wallet"`
	InputMint   string  `json:"inputMint"`
	OutputMint  string  `json:"outputMint"`
	Amount      float64 `json:"amount"`
	SlippageBps int     `json:"slippageBps"`
	PriorityFee float64 `json:"priorityFee"`
}

// swapAPIResponse is the wire response for the swap endpoint.
type swapAPIResponse struct {
	Signature      string  `json:"signature"`
	OutputAmount   float64 `json:"outputAmount"`
	PartialFill    bool    `json:"partialFill"`
	PercentageSold float64 `json:"percentageSold"`
	Error          string  `json:"error"`
}

// Execute runs one swap. A non-nil error is a transport-level failure;
// swap-level failures come back as Result{Success: false, Err: ...}.
func (e *RPCExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(swapAPIRequest{
		Wallet:      req.Wallet,
		InputMint:   req.TokenIn,
		OutputMint:  req.TokenOut,
		Amount:      req.Amount,
		SlippageBps: req.SlippageBps,
		PriorityFee: req.PriorityFee,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.swapEndpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("swap request: %w", err)
	}
	respBody, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		return Result{}, fmt.Errorf("read swap response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("swap endpoint status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp swapAPIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Result{}, fmt.Errorf("unmarshal swap response: %w", err)
	}

	if resp.Error != "" {
		return Result{Success: false, Err: resp.Error}, nil
	}
	if resp.Signature == "" {
		return Result{Success: false, Err: "swap endpoint returned no signature"}, nil
	}

	result := Result{
		Signature:      resp.Signature,
		OutputAmount:   resp.OutputAmount,
		PartialFill:    resp.PartialFill,
		PercentageSold: resp.PercentageSold,
	}

	received, confirmErr := e.confirm(ctx, resp.Signature, req.Wallet)
	if confirmErr != nil {
		result.Err = confirmErr.Error()
		return result, nil
	}
	if received > 0 {
		// Prefer the measured balance delta over the quoted amount.
		result.OutputAmount = received
	}

	result.Success = !resp.PartialFill
	return result, nil
}

// confirm polls for the landed transaction and returns the wallet's
// SOL balance delta measured from transaction meta.
func (e *RPCExecutor) confirm(ctx context.Context, signature, walletAddress string) (float64, error) {
	var tx *solana.Transaction
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(confirmDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		var err error
		tx, err = e.rpc.GetTransaction(ctx, signature)
		if err != nil {
			return 0, fmt.Errorf("confirm %s: %w", signature, err)
		}
		if tx != nil {
			break
		}
	}
	if tx == nil {
		return 0, fmt.Errorf("transaction %s not confirmed", signature)
	}
	if tx.Meta == nil {
		return 0, nil
	}
	if tx.Meta.Err != nil {
		return 0, fmt.Errorf("transaction %s failed on-chain: %v", signature, tx.Meta.Err)
	}

	return solReceived(tx, walletAddress), nil
}

// solReceived computes the wallet's SOL delta from pre/post balances.
func solReceived(tx *solana.Transaction, walletAddress string) float64 {
	if tx.Message == nil || tx.Meta == nil {
		return 0
	}
	for i, key := range tx.Message.AccountKeys {
		if key != walletAddress {
			continue
		}
		if i < len(tx.Meta.PreBalances) && i < len(tx.Meta.PostBalances) {
			delta := int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i])
			if delta > 0 {
				return float64(delta) / solana.LamportsPerSol
			}
		}
		return 0
	}
	return 0
}
