package stub

import (
	"context"
	"errors"
	"sync"

	"solana-signal-trader/internal/solana"
)

// ErrNotFound is returned when a mint is unknown to the stub.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Lamports      map[string]uint64
	TokenAccounts map[string][]solana.TokenAccount // key: owner + "/" + mint
	Supplies      map[string]*solana.TokenAmount
	Statuses      map[string]*solana.SignatureStatus
	Transactions  map[string]*solana.Transaction

	// SendErr is returned by SendTransaction when set.
	SendErr error
	// Sent records every submitted transaction.
	Sent [][]byte
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Lamports:      make(map[string]uint64),
		TokenAccounts: make(map[string][]solana.TokenAccount),
		Supplies:      make(map[string]*solana.TokenAmount),
		Statuses:      make(map[string]*solana.SignatureStatus),
		Transactions:  make(map[string]*solana.Transaction),
	}
}

// GetBalance returns the stored lamports of pubkey.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Lamports[pubkey], nil
}

// GetTokenAccountsByOwner returns the stored token accounts.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner, mint string) ([]solana.TokenAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.TokenAccount(nil), c.TokenAccounts[owner+"/"+mint]...), nil
}

// GetTokenSupply returns the stored supply of mint.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Supplies[mint]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// SendTransaction records the transaction.
func (c *RPCClient) SendTransaction(_ context.Context, signedTx []byte, _ *solana.SendOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, signedTx)
	if c.SendErr != nil {
		return "", c.SendErr
	}
	return solana.SignatureOf(signedTx)
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// GetTransaction returns the stored transaction or nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// SetTokenBalance stores a single token account holding amount.
func (c *RPCClient) SetTokenBalance(owner, mint string, amount uint64, decimals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[owner+"/"+mint] = []solana.TokenAccount{{
		Pubkey:   owner + "-ata",
		Mint:     mint,
		Amount:   amount,
		Decimals: decimals,
	}}
}

// SetStatus stores a signature status.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}
