package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidKeypair is returned when a secret key cannot be parsed.
var ErrInvalidKeypair = errors.New("invalid keypair")

// Keypair is an ed25519 wallet key.
type Keypair struct {
	private ed25519.PrivateKey
	public  string
}

// ParseKeypair parses a 64-byte secret key given either as base58 or as a
// JSON byte array in the solana-keygen file format.
func ParseKeypair(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidKeypair)
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = decoded
	}

	return NewKeypair(raw)
}

// NewKeypair wraps a 64-byte ed25519 private key.
func NewKeypair(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, ed25519.PrivateKeySize, len(secret))
	}
	priv := ed25519.PrivateKey(append([]byte(nil), secret...))

	// The trailing 32 bytes must be the public key of the seed.
	derived := ed25519.NewKeyFromSeed(priv.Seed())
	if !derived.Equal(priv) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}

	return &Keypair{
		private: priv,
		public:  base58.Encode(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// PublicKey returns the base58 wallet address.
func (k *Keypair) PublicKey() string {
	return k.public
}

// PublicKeyBytes returns the raw 32-byte public key.
func (k *Keypair) PublicKeyBytes() []byte {
	return []byte(k.private.Public().(ed25519.PublicKey))
}

// Sign signs msg with the private key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// SignTransaction signs a serialized transaction in place of our signer slot.
func (k *Keypair) SignTransaction(tx []byte) ([]byte, error) {
	return SignTransaction(tx, k)
}
