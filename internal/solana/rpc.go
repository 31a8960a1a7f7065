package solana

import "context"

// RPCClient defines the Solana RPC HTTP surface used by the watcher
// and the swap executor.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns (nil, nil) when the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBalance returns the wallet's lamport balance.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetLatestBlockhash returns a recent blockhash for transaction
	// submission.
	GetLatestBlockhash(ctx context.Context) (string, error)

	// SendTransaction submits a base64-encoded signed transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)
}
