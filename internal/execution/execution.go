// Package execution drives a swap from quote to confirmed settlement, including
// verification of transactions whose confirmation timed out.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-signal-trader/internal/observability"
)

// Execution errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoRoute           = errors.New("no route")
	ErrBuildFailed       = errors.New("build swap transaction failed")
	ErrOnChainFailure    = errors.New("transaction failed on chain")
	ErrConfirmTimeout    = errors.New("confirmation timeout")
	ErrBlockhashExpired  = errors.New("blockhash expired")
)

// Direction of a swap relative to the funding asset.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Request describes one swap.
type Request struct {
	Direction   Direction
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw units of InputMint
	SlippageBps int
}

// Result is a confirmed swap.
type Result struct {
	TxID string
	// SettledAmount is the post-trade balance of the output asset for buys and the
	// increase of the output balance for sells.
	SettledAmount uint64
	// Received is the increase of the output balance, floored at zero.
	Received  uint64
	Recovered bool
}

// Quote is a priced route from the swap service.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	SlippageBps int
	Raw         []byte // opaque route payload echoed back to BuildSwap
}

// TxStatus is the ledger's record of a transaction.
type TxStatus struct {
	Found bool
	Err   string // non-empty when the transaction failed on chain
}

// SwapClient quotes and builds swap transactions.
type SwapClient interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)
	BuildSwap(ctx context.Context, quote *Quote, signer string) ([]byte, error)
}

// Ledger reads balances and submits transactions.
type Ledger interface {
	Balance(ctx context.Context, owner, mint string) (uint64, error)
	// Broadcast returns the transaction id whenever it is known, including on error.
	Broadcast(ctx context.Context, signedTx []byte) (string, error)
	// Confirm waits for the transaction to land. onChainErr is non-empty when it
	// landed with an error.
	Confirm(ctx context.Context, txID string) (onChainErr string, err error)
	GetTransaction(ctx context.Context, txID string) (*TxStatus, error)
}

// Signer signs serialized transactions with the wallet key.
type Signer interface {
	PublicKey() string
	SignTransaction(tx []byte) ([]byte, error)
}

// Defaults.
const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultRecoveryGrace  = 10 * time.Second
)

// Options configures an Executor.
type Options struct {
	Swap           SwapClient
	Ledger         Ledger
	Signer         Signer
	ConfirmTimeout time.Duration // Default: 60s
	RecoveryGrace  time.Duration // Default: 10s
	Logger         *zap.Logger
}

// Executor runs the quote, build, sign, broadcast, confirm sequence.
type Executor struct {
	swap           SwapClient
	ledger         Ledger
	signer         Signer
	confirmTimeout time.Duration
	recoveryGrace  time.Duration
	logger         *zap.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	confirmTimeout := opts.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	grace := opts.RecoveryGrace
	if grace < 0 {
		grace = 0
	} else if grace == 0 {
		grace = DefaultRecoveryGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		swap:           opts.Swap,
		ledger:         opts.Ledger,
		signer:         opts.Signer,
		confirmTimeout: confirmTimeout,
		recoveryGrace:  grace,
		logger:         logger.Named("execution"),
	}
}

// Owner returns the wallet address trades are executed from.
func (e *Executor) Owner() string {
	return e.signer.PublicKey()
}

// Execute performs the swap described by req.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, req)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "failure"
	case res.Recovered:
		outcome = "recovered"
	}
	observability.RecordExecution(string(req.Direction), outcome, time.Since(start).Seconds())
	return res, err
}

func (e *Executor) execute(ctx context.Context, req Request) (*Result, error) {
	owner := e.signer.PublicKey()
	log := e.logger.With(
		zap.String("direction", string(req.Direction)),
		zap.String("input", req.InputMint),
		zap.String("output", req.OutputMint),
		zap.Uint64("amount", req.Amount))

	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrInsufficientFunds)
	}

	inBalance, err := e.ledger.Balance(ctx, owner, req.InputMint)
	if err != nil {
		return nil, fmt.Errorf("read input balance: %w", err)
	}
	if inBalance < req.Amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, inBalance, req.Amount)
	}

	preOut, err := e.ledger.Balance(ctx, owner, req.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("read output balance: %w", err)
	}

	quote, err := e.swap.Quote(ctx, req.InputMint, req.OutputMint, req.Amount, req.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	if quote == nil || quote.OutAmount == 0 {
		return nil, ErrNoRoute
	}
	log.Info("quote received", zap.Uint64("out_amount", quote.OutAmount))

	unsigned, err := e.swap.BuildSwap(ctx, quote, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if len(unsigned) == 0 {
		return nil, ErrBuildFailed
	}

	signed, err := e.signer.SignTransaction(unsigned)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	txID, sendErr := e.ledger.Broadcast(ctx, signed)
	if txID != "" {
		log = log.With(zap.String("tx", txID))
	}
	if sendErr != nil {
		log.Warn("broadcast failed", zap.Error(sendErr))
		return e.recoverOrFail(ctx, log, req, owner, txID, preOut, sendErr)
	}
	log.Info("transaction sent")

	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	onChainErr, confirmErr := e.ledger.Confirm(confirmCtx, txID)
	cancel()
	if confirmErr != nil {
		// The transaction is out; a deadline or a cancelled caller leaves its fate unknown.
		if errors.Is(confirmErr, context.DeadlineExceeded) || errors.Is(confirmErr, context.Canceled) {
			confirmErr = fmt.Errorf("%w: %v", ErrConfirmTimeout, confirmErr)
		}
		log.Warn("confirmation failed", zap.Error(confirmErr))
		return e.recoverOrFail(ctx, log, req, owner, txID, preOut, confirmErr)
	}
	if onChainErr != "" {
		log.Warn("transaction failed on chain", zap.String("err", onChainErr))
		return nil, fmt.Errorf("%w: %s", ErrOnChainFailure, onChainErr)
	}

	postOut, err := e.ledger.Balance(ctx, owner, req.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("read settled balance: %w", err)
	}

	res := settle(req.Direction, txID, preOut, postOut)
	log.Info("transaction confirmed",
		zap.Uint64("settled", res.SettledAmount),
		zap.Uint64("received", res.Received))
	return res, nil
}

// recoverOrFail upgrades a timed-out submission to success only when the
// transaction is found without error and the output balance grew. The lookups
// run even when ctx is cancelled so a landed transaction is never lost.
func (e *Executor) recoverOrFail(ctx context.Context, log *zap.Logger, req Request, owner, txID string, preOut uint64, cause error) (*Result, error) {
	if txID == "" || !IsTimeout(cause) {
		return nil, cause
	}

	log.Info("verifying timed out transaction", zap.Duration("grace", e.recoveryGrace))

	if e.recoveryGrace > 0 {
		timer := time.NewTimer(e.recoveryGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("caller cancelled, checking transaction now")
		case <-timer.C:
		}
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.confirmTimeout)
	defer cancel()
	ctx = lookupCtx

	status, err := e.ledger.GetTransaction(ctx, txID)
	if err != nil || status == nil || !status.Found || status.Err != "" {
		log.Warn("recovery check failed", zap.Error(err))
		observability.RecordRecovery(false)
		return nil, cause
	}

	postOut, err := e.ledger.Balance(ctx, owner, req.OutputMint)
	if err != nil || postOut <= preOut {
		log.Warn("recovery check failed: output balance did not increase",
			zap.Uint64("pre", preOut),
			zap.Uint64("post", postOut),
			zap.Error(err))
		observability.RecordRecovery(false)
		return nil, cause
	}

	res := settle(req.Direction, txID, preOut, postOut)
	res.Recovered = true
	observability.RecordRecovery(true)
	log.Info("timed out transaction verified on chain",
		zap.Uint64("settled", res.SettledAmount))
	return res, nil
}

func settle(dir Direction, txID string, preOut, postOut uint64) *Result {
	var received uint64
	if postOut > preOut {
		received = postOut - preOut
	}
	settled := postOut
	if dir == Sell {
		settled = received
	}
	return &Result{TxID: txID, SettledAmount: settled, Received: received}
}

// SettleTimeout bounds one Execute call from broadcast to the end of recovery.
func (e *Executor) SettleTimeout() time.Duration {
	return 2*e.confirmTimeout + e.recoveryGrace
}

// IsTimeout reports whether err is a timeout-class failure eligible for recovery.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) ||
		errors.Is(err, ErrBlockhashExpired) ||
		errors.Is(err, context.DeadlineExceeded)
}
