// Package crypto wraps the secp256k1 signing primitives used by the demo
// Support implementation in consensus/bft, adapted from the teacher
// lineage's crypto package: an ECDSA keypair whose address is the
// Keccak256-derived account address go-ethereum/crypto computes.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is the public half of a PrivateKey.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a new random signing key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes parses a 32-byte secp256k1 scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw scalar encoding of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public half of k.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the 20-byte account address derived from the public
// key, the same derivation go-ethereum uses.
func (k *PublicKey) Address() []byte {
	return ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
}

// Sign produces a 65-byte recoverable signature over a 32-byte hash.
func (k *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("crypto: sign: hash must be 32 bytes, got %d", len(hash))
	}
	return ethcrypto.Sign(hash, k.PrivateKey)
}

// RecoverAddress recovers the signer's address from a signature over
// hash, returning ok=false if the signature does not verify.
func RecoverAddress(hash, sig []byte) (addr []byte, ok bool) {
	if len(sig) != 65 {
		return nil, false
	}
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return nil, false
	}
	return ethcrypto.PubkeyToAddress(*pub).Bytes(), true
}

// Hash computes the Keccak256 digest of data.
func Hash(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}
