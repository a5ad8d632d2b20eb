package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-signal-trader/internal/execution"
)

// DefaultPollInterval is how often signature statuses are polled while confirming.
const DefaultPollInterval = 2 * time.Second

// LedgerOptions configures a Ledger.
type LedgerOptions struct {
	RPC          RPCClient
	WS           WSClient // Optional: confirmation fast path
	PollInterval time.Duration
	Send         *SendOptions
	Logger       *zap.Logger
}

// Ledger adapts the RPC and WebSocket clients to the execution ledger contract.
type Ledger struct {
	rpc          RPCClient
	ws           WSClient
	pollInterval time.Duration
	send         *SendOptions
	logger       *zap.Logger

	decimalsMu sync.RWMutex
	decimals   map[string]int
}

var _ execution.Ledger = (*Ledger)(nil)

// NewLedger creates a Ledger.
func NewLedger(opts LedgerOptions) *Ledger {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	send := opts.Send
	if send == nil {
		send = &SendOptions{PreflightCommitment: CommitmentConfirmed}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		rpc:          opts.RPC,
		ws:           opts.WS,
		pollInterval: poll,
		send:         send,
		logger:       logger.Named("ledger"),
		decimals:     map[string]int{NativeMint: NativeDecimals},
	}
}

// Balance returns the owner's raw balance of mint. The native mint reads lamports.
func (l *Ledger) Balance(ctx context.Context, owner, mint string) (uint64, error) {
	if mint == NativeMint {
		lamports, err := l.rpc.GetBalance(ctx, owner)
		if err != nil {
			return 0, fmt.Errorf("get balance: %w", err)
		}
		return lamports, nil
	}

	accounts, err := l.rpc.GetTokenAccountsByOwner(ctx, owner, mint)
	if err != nil {
		return 0, fmt.Errorf("get token accounts: %w", err)
	}

	var total uint64
	for _, a := range accounts {
		total += a.Amount
		l.setDecimals(mint, a.Decimals)
	}
	return total, nil
}

// Broadcast submits a signed transaction. The id is derived from the signature
// so it is returned even when submission fails.
func (l *Ledger) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	txID, err := SignatureOf(signedTx)
	if err != nil {
		return "", fmt.Errorf("read signature: %w", err)
	}

	sent, err := l.rpc.SendTransaction(ctx, signedTx, l.send)
	if err != nil {
		return txID, classifySendError(err)
	}
	if sent != "" && sent != txID {
		l.logger.Warn("node returned a different signature",
			zap.String("tx", txID),
			zap.String("returned", sent))
	}
	return txID, nil
}

// classifySendError maps expired blockhash rejections to execution.ErrBlockhashExpired.
func classifySendError(err error) error {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		if strings.Contains(msg, "blockhash not found") || strings.Contains(msg, "block height exceeded") {
			return fmt.Errorf("%w: %v", execution.ErrBlockhashExpired, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: send: %v", execution.ErrConfirmTimeout, err)
	}
	return fmt.Errorf("send transaction: %w", err)
}

// Confirm waits until txID reaches confirmed commitment. It polls signature
// statuses and, when a WebSocket client is configured, also listens for the
// signature notification.
func (l *Ledger) Confirm(ctx context.Context, txID string) (string, error) {
	var notify <-chan SignatureNotification
	if l.ws != nil {
		ch, err := l.ws.SubscribeSignature(ctx, txID)
		if err != nil {
			l.logger.Debug("signature subscribe failed, polling only",
				zap.String("tx", txID), zap.Error(err))
		} else {
			notify = ch
		}
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := l.rpc.GetSignatureStatuses(ctx, txID)
		if err == nil && len(statuses) == 1 && statuses[0].Landed() {
			return errString(statuses[0].Err), nil
		}
		if err != nil && ctx.Err() == nil {
			l.logger.Debug("signature status poll failed", zap.String("tx", txID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", execution.ErrConfirmTimeout, ctx.Err())
		case n, ok := <-notify:
			if ok {
				return errString(n.Err), nil
			}
			notify = nil
		case <-ticker.C:
		}
	}
}

// GetTransaction looks the transaction up by id.
func (l *Ledger) GetTransaction(ctx context.Context, txID string) (*execution.TxStatus, error) {
	tx, err := l.rpc.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil {
		return &execution.TxStatus{Found: false}, nil
	}
	status := &execution.TxStatus{Found: true}
	if tx.Meta != nil {
		status.Err = errString(tx.Meta.Err)
	}
	return status, nil
}

// Decimals returns the decimals of mint, cached after the first lookup.
func (l *Ledger) Decimals(ctx context.Context, mint string) (int, error) {
	l.decimalsMu.RLock()
	d, ok := l.decimals[mint]
	l.decimalsMu.RUnlock()
	if ok {
		return d, nil
	}

	supply, err := l.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get token supply: %w", err)
	}
	l.setDecimals(mint, supply.Decimals)
	return supply.Decimals, nil
}

func (l *Ledger) setDecimals(mint string, decimals int) {
	l.decimalsMu.Lock()
	l.decimals[mint] = decimals
	l.decimalsMu.Unlock()
}

// errString renders an on-chain error value, empty for nil.
func errString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
