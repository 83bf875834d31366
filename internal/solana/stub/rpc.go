// Package stub provides in-memory fakes of the chain clients for tests.
package stub

import (
	"context"
	"sync"

	"updown-monitor/internal/solana"
)

// RPCClient implements solana.RPCClient against an in-memory transaction
// map. An unknown signature returns (nil, nil), matching the real
// client's not-yet-indexed behavior.
type RPCClient struct {
	mu           sync.Mutex
	transactions map[string]*solana.Transaction
	calls        map[string]int
}

// NewRPCClient creates an empty stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		transactions: make(map[string]*solana.Transaction),
		calls:        make(map[string]int),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetTransaction retrieves a transaction by signature from the stub
// store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[signature]++
	return c.transactions[signature], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[tx.Signature] = tx
}

// Calls returns how many lookups were made for a signature.
func (c *RPCClient) Calls(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[signature]
}
