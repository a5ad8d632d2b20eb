package solana

// NativeMint is the wrapped SOL mint. Balances for it are read as lamports.
const NativeMint = "So11111111111111111111111111111111111111112"

// NativeDecimals is the number of decimals of SOL.
const NativeDecimals = 9

// Commitment levels.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// TokenAccount is a parsed SPL token account.
type TokenAccount struct {
	Pubkey   string
	Mint     string
	Amount   uint64
	Decimals int
}

// TokenAmount is a raw token amount with its decimals.
type TokenAmount struct {
	Amount   uint64
	Decimals int
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus string
}

// Landed reports whether the status has reached at least confirmed commitment.
func (s *SignatureStatus) Landed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

// SendOptions defines optional parameters for sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint
}
