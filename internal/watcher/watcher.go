// Package watcher turns the Solana log stream into buy events for the
// guard. It subscribes to logs mentioning a token mint, resolves each
// transaction over RPC and hands parsed buys to the configured handler.
// The guard itself never subscribes to anything; events are pushed in.
package watcher

import (
	"context"
	"log"
	"time"

	"trench-guard/internal/domain"
	"trench-guard/internal/solana"
)

const (
	maxTxRetries     = 3
	baseTxRetryDelay = 500 * time.Millisecond
)

// Handler receives each parsed buy event.
type Handler func(tokenAddress string, ev domain.BuyEvent)

// Watcher feeds buy events for watched tokens.
type Watcher struct {
	ws      solana.WSClient
	rpc     solana.RPCClient
	handler Handler
	logger  *log.Logger
}

// New creates a watcher delivering buy events to handler.
func New(ws solana.WSClient, rpc solana.RPCClient, handler Handler, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		ws:      ws,
		rpc:     rpc,
		handler: handler,
		logger:  logger,
	}
}

// Watch subscribes to logs mentioning the token and starts a feed
// goroutine. The feed stops when ctx is cancelled or the subscription
// channel closes.
func (w *Watcher) Watch(ctx context.Context, tokenAddress string) error {
	ch, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{tokenAddress},
	})
	if err != nil {
		return err
	}

	go w.run(ctx, tokenAddress, ch)
	w.logger.Printf("[watcher] watching token %s", tokenAddress)
	return nil
}

// run consumes log notifications for one token.
func (w *Watcher) run(ctx context.Context, tokenAddress string, ch <-chan solana.LogNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				w.logger.Printf("[watcher] feed closed for %s", tokenAddress)
				return
			}
			if n.Err != nil {
				continue // failed transaction, no balance changes
			}
			w.process(ctx, tokenAddress, n.Signature)
		}
	}
}

// process fetches one transaction and emits a buy event if it is a buy.
func (w *Watcher) process(ctx context.Context, tokenAddress, signature string) {
	tx, err := w.fetchTransaction(ctx, signature)
	if err != nil {
		w.logger.Printf("[watcher] fetch %s: %v", signature, err)
		return
	}
	if tx == nil {
		return
	}

	ev := ParseBuyEvent(tx, tokenAddress)
	if ev == nil {
		return
	}

	w.handler(tokenAddress, *ev)
}

// fetchTransaction retrieves a transaction with bounded backoff; a
// just-confirmed signature may not be queryable immediately.
func (w *Watcher) fetchTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(baseTxRetryDelay * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		tx, err := w.rpc.GetTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// ParseBuyEvent extracts a buy of the given token from a transaction.
// A buy is a transaction whose fee payer spent SOL and gained tokens of
// the mint. Returns nil for sells, transfers and unrelated activity.
func ParseBuyEvent(tx *solana.Transaction, tokenAddress string) *domain.BuyEvent {
	if tx.Meta == nil || tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return nil
	}
	if tx.Meta.Err != nil {
		return nil
	}

	buyer := tx.Message.AccountKeys[0]

	// SOL spent: fee payer's lamport decrease.
	if len(tx.Meta.PreBalances) == 0 || len(tx.Meta.PostBalances) == 0 {
		return nil
	}
	lamportsSpent := int64(tx.Meta.PreBalances[0]) - int64(tx.Meta.PostBalances[0])
	if lamportsSpent <= 0 {
		return nil
	}

	// Tokens gained: buyer-owned token balance increase for the mint.
	tokensGained := tokenDelta(tx.Meta, tokenAddress, buyer)
	if tokensGained <= 0 {
		return nil
	}

	return &domain.BuyEvent{
		Wallet:      buyer,
		SolAmount:   float64(lamportsSpent) / solana.LamportsPerSol,
		TokenAmount: tokensGained,
		Timestamp:   tx.BlockTime * 1000,
		TxSignature: tx.Signature,
	}
}

// tokenDelta sums the owner's token balance change for the mint.
func tokenDelta(meta *solana.TransactionMeta, mint, owner string) float64 {
	pre := make(map[int]float64)
	for _, tb := range meta.PreTokenBalances {
		if tb.Mint == mint && tb.Owner == owner {
			pre[tb.AccountIndex] = tb.UIAmount
		}
	}

	var delta float64
	seen := false
	for _, tb := range meta.PostTokenBalances {
		if tb.Mint == mint && tb.Owner == owner {
			delta += tb.UIAmount - pre[tb.AccountIndex]
			delete(pre, tb.AccountIndex)
			seen = true
		}
	}
	// Accounts present pre but drained post count as outflow.
	for _, amount := range pre {
		delta -= amount
		seen = true
	}

	if !seen {
		return 0
	}
	return delta
}
