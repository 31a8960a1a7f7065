package stub

import (
	"context"
	"sync"

	"trench-guard/internal/solana"
)

// WSClient implements solana.WSClient for testing. Tests push
// notifications with Emit; every subscriber receives every emitted
// notification.
type WSClient struct {
	mu     sync.Mutex
	subs   []chan solana.LogNotification
	closed bool
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{}
}

// SubscribeLogs returns a channel fed by Emit. The filter is ignored.
func (c *WSClient) SubscribeLogs(_ context.Context, _ solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan solana.LogNotification, 100)
	c.subs = append(c.subs, ch)
	return ch, nil
}

// Emit delivers a notification to all subscribers.
func (c *WSClient) Emit(n solana.LogNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, ch := range c.subs {
		ch <- n
	}
}

// Close closes all subscriber channels.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	return nil
}
