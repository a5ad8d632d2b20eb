// Package stub provides an in-memory swap client for tests.
package stub

import (
	"context"
	"sync"

	"solana-signal-trader/internal/execution"
)

// QuoteCall records the arguments of a Quote call.
type QuoteCall struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// SwapClient implements execution.SwapClient.
type SwapClient struct {
	mu sync.Mutex

	// QuoteFn computes the output amount. Defaults to returning Amount unchanged.
	QuoteFn  func(inputMint, outputMint string, amount uint64) (uint64, error)
	BuildErr error
	// Tx is returned by BuildSwap. Defaults to a fixed non-empty payload.
	Tx []byte

	Quotes []QuoteCall
	Builds int
}

var _ execution.SwapClient = (*SwapClient)(nil)

// NewSwapClient creates a stub client that quotes 1:1.
func NewSwapClient() *SwapClient {
	return &SwapClient{Tx: []byte("unsigned-tx")}
}

// Quote returns the output computed by QuoteFn.
func (c *SwapClient) Quote(_ context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*execution.Quote, error) {
	c.mu.Lock()
	c.Quotes = append(c.Quotes, QuoteCall{inputMint, outputMint, amount, slippageBps})
	fn := c.QuoteFn
	c.mu.Unlock()

	out := amount
	if fn != nil {
		var err error
		out, err = fn(inputMint, outputMint, amount)
		if err != nil {
			return nil, err
		}
	}
	return &execution.Quote{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		InAmount:    amount,
		OutAmount:   out,
		SlippageBps: slippageBps,
		Raw:         []byte(`{}`),
	}, nil
}

// BuildSwap returns Tx or BuildErr.
func (c *SwapClient) BuildSwap(_ context.Context, _ *execution.Quote, _ string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Builds++
	if c.BuildErr != nil {
		return nil, c.BuildErr
	}
	return c.Tx, nil
}

// QuoteCount returns the number of Quote calls.
func (c *SwapClient) QuoteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Quotes)
}
