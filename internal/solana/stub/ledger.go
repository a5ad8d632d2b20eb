package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-signal-trader/internal/execution"
)

// Ledger implements execution.Ledger with in-memory balances for a single wallet.
type Ledger struct {
	mu sync.Mutex

	balances     map[string]uint64
	decimals     map[string]int
	transactions map[string]*execution.TxStatus
	nextID       int

	// BalanceErr is returned by Balance when set.
	BalanceErr error
	// BroadcastErr is returned by Broadcast together with the tx id.
	BroadcastErr error
	// ConfirmErr and OnChainErr are returned by Confirm.
	ConfirmErr error
	OnChainErr string
	// OnBroadcast runs after each broadcast, outside the lock. Tests use it to
	// move balances as the swap would.
	OnBroadcast func(txID string)

	Broadcasts [][]byte
}

var _ execution.Ledger = (*Ledger)(nil)

// NewLedger creates an empty stub ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:     make(map[string]uint64),
		decimals:     make(map[string]int),
		transactions: make(map[string]*execution.TxStatus),
	}
}

// SetBalance sets the wallet balance of mint.
func (l *Ledger) SetBalance(mint string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[mint] = amount
}

// AddBalance adjusts the wallet balance of mint by delta, floored at zero.
func (l *Ledger) AddBalance(mint string, delta int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := int64(l.balances[mint]) + delta
	if cur < 0 {
		cur = 0
	}
	l.balances[mint] = uint64(cur)
}

// SetDecimals sets the decimals reported for mint.
func (l *Ledger) SetDecimals(mint string, decimals int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decimals[mint] = decimals
}

// SetTransaction stores the status GetTransaction returns for txID.
func (l *Ledger) SetTransaction(txID string, status *execution.TxStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions[txID] = status
}

// Balance returns the wallet balance of mint. The owner is ignored.
func (l *Ledger) Balance(_ context.Context, _, mint string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BalanceErr != nil {
		return 0, l.BalanceErr
	}
	return l.balances[mint], nil
}

// Broadcast records the transaction and returns a sequential id.
func (l *Ledger) Broadcast(_ context.Context, signedTx []byte) (string, error) {
	l.mu.Lock()
	l.nextID++
	txID := fmt.Sprintf("stub-tx-%d", l.nextID)
	l.Broadcasts = append(l.Broadcasts, signedTx)
	err := l.BroadcastErr
	hook := l.OnBroadcast
	l.mu.Unlock()

	if hook != nil {
		hook(txID)
	}
	return txID, err
}

// Confirm returns the configured outcome.
func (l *Ledger) Confirm(_ context.Context, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.OnChainErr, l.ConfirmErr
}

// GetTransaction returns the stored status, or not found.
func (l *Ledger) GetTransaction(_ context.Context, txID string) (*execution.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.transactions[txID]; ok {
		return s, nil
	}
	return &execution.TxStatus{Found: false}, nil
}

// Decimals returns the configured decimals of mint.
func (l *Ledger) Decimals(_ context.Context, mint string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.decimals[mint]
	if !ok {
		return 0, ErrNotFound
	}
	return d, nil
}
