package solana

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Wire format constants.
const (
	SignatureSize = 64
	PubkeySize    = 32

	versionPrefixMask = 0x80
	messageHeaderSize = 3
)

// ErrMalformedTransaction is returned when a serialized transaction cannot be parsed.
var ErrMalformedTransaction = errors.New("malformed transaction")

// ErrSignerNotRequired is returned when the key is not among the required signers.
var ErrSignerNotRequired = errors.New("key is not a required signer")

// transactionLayout locates the parts of a serialized transaction.
type transactionLayout struct {
	numSignatures      int
	signaturesOffset   int
	messageOffset      int
	requiredSignatures int
	accountKeysOffset  int
	numAccountKeys     int
}

// parseLayout reads the signature section and message header of a legacy or
// versioned transaction.
func parseLayout(tx []byte) (*transactionLayout, error) {
	numSigs, n, err := decodeShortVec(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: signature count: %v", ErrMalformedTransaction, err)
	}

	l := &transactionLayout{
		numSignatures:    numSigs,
		signaturesOffset: n,
		messageOffset:    n + numSigs*SignatureSize,
	}
	if l.messageOffset >= len(tx) {
		return nil, fmt.Errorf("%w: truncated signatures", ErrMalformedTransaction)
	}

	pos := l.messageOffset
	if tx[pos]&versionPrefixMask != 0 {
		pos++
	}
	if pos+messageHeaderSize > len(tx) {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformedTransaction)
	}
	l.requiredSignatures = int(tx[pos])
	pos += messageHeaderSize

	numKeys, n, err := decodeShortVec(tx[pos:])
	if err != nil {
		return nil, fmt.Errorf("%w: account key count: %v", ErrMalformedTransaction, err)
	}
	pos += n
	if pos+numKeys*PubkeySize > len(tx) {
		return nil, fmt.Errorf("%w: truncated account keys", ErrMalformedTransaction)
	}
	l.accountKeysOffset = pos
	l.numAccountKeys = numKeys

	if l.requiredSignatures != l.numSignatures || l.requiredSignatures > l.numAccountKeys {
		return nil, fmt.Errorf("%w: %d signatures for %d required signers",
			ErrMalformedTransaction, l.numSignatures, l.requiredSignatures)
	}
	return l, nil
}

// TransactionSigner produces ed25519 signatures for a public key.
type TransactionSigner interface {
	PublicKeyBytes() []byte
	Sign(msg []byte) []byte
}

// SignTransaction places signer's signature over the message into the slot that
// matches its position among the required signers. The input is not modified.
func SignTransaction(tx []byte, signer TransactionSigner) ([]byte, error) {
	l, err := parseLayout(tx)
	if err != nil {
		return nil, err
	}

	pub := signer.PublicKeyBytes()
	index := -1
	for i := 0; i < l.requiredSignatures; i++ {
		off := l.accountKeysOffset + i*PubkeySize
		if bytes.Equal(tx[off:off+PubkeySize], pub) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrSignerNotRequired
	}

	out := append([]byte(nil), tx...)
	sig := signer.Sign(out[l.messageOffset:])
	copy(out[l.signaturesOffset+index*SignatureSize:], sig)
	return out, nil
}

// SignatureOf returns the base58 transaction id, which is the first signature.
func SignatureOf(tx []byte) (string, error) {
	l, err := parseLayout(tx)
	if err != nil {
		return "", err
	}
	if l.numSignatures == 0 {
		return "", fmt.Errorf("%w: no signatures", ErrMalformedTransaction)
	}
	first := tx[l.signaturesOffset : l.signaturesOffset+SignatureSize]
	if bytes.Equal(first, make([]byte, SignatureSize)) {
		return "", fmt.Errorf("%w: unsigned", ErrMalformedTransaction)
	}
	return base58.Encode(first), nil
}

// decodeShortVec decodes a compact-u16 length prefix.
func decodeShortVec(b []byte) (value, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, errors.New("unexpected end of input")
		}
		elem := int(b[size])
		value |= (elem & 0x7f) << (7 * size)
		size++
		if elem&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, errors.New("compact-u16 overflow")
}
