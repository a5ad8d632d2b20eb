package solana

import "context"

// RPCClient defines Solana RPC HTTP interface.
type RPCClient interface {
	// GetBalance returns the native balance of an account in lamports.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenAccountsByOwner lists the owner's token accounts for a mint.
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccount, error)

	// GetTokenSupply returns the total supply and decimals of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// SendTransaction submits a signed wire-format transaction and returns its signature.
	SendTransaction(ctx context.Context, signedTx []byte, opts *SendOptions) (string, error)

	// GetSignatureStatuses returns the status of each signature, nil for unknown ones.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	Fee         uint64
	LogMessages []string
}
