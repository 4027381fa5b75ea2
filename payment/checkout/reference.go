package checkout

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/btcsuite/btcutil/base58"
)

// NewReference returns the base58 public key of a fresh ed25519 key pair.
// The private half is discarded; the key only marks the transaction.
func NewReference() (string, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base58.Encode(pub), nil
}
