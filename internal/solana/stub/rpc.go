// Package stub provides deterministic in-memory fakes for the solana
// client interfaces, used by watcher and executor tests.
package stub

import (
	"context"
	"errors"
	"fmt"

	"trench-guard/internal/solana"
)

// ErrUnavailable simulates a transport failure.
var ErrUnavailable = errors.New("rpc unavailable")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Transactions map[string]*solana.Transaction
	Balances     map[string]uint64 // lamports by address
	Blockhash    string

	// FailSends makes the next n SendTransaction calls return
	// ErrUnavailable.
	FailSends int

	// SentTransactions records every submitted payload.
	SentTransactions []string

	sendSeq int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Balances:     make(map[string]uint64),
		Blockhash:    "StubB1ockhash1111111111111111111111111111111",
	}
}

// GetTransaction retrieves a transaction from the stub store.
// Returns (nil, nil) for unknown signatures, matching the RPC client.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	return c.Transactions[signature], nil
}

// GetBalance returns the stubbed lamport balance, zero when unset.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	return c.Balances[address], nil
}

// GetLatestBlockhash returns the stubbed blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (string, error) {
	return c.Blockhash, nil
}

// SendTransaction records the payload and returns a deterministic
// signature, or ErrUnavailable while FailSends is positive.
func (c *RPCClient) SendTransaction(_ context.Context, signedTxBase64 string) (string, error) {
	if c.FailSends > 0 {
		c.FailSends--
		return "", ErrUnavailable
	}
	c.sendSeq++
	c.SentTransactions = append(c.SentTransactions, signedTxBase64)
	return fmt.Sprintf("StubSig%d", c.sendSeq), nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
}
