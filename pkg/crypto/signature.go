package crypto

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Signer signs arbitrary messages and exposes the certificate that
// verifies them.
type Signer interface {
	// Sign produces a signature over msg.
	Sign(msg []byte) (types.Signature, error)
	// Certificate returns the signer's 33-byte certificate.
	Certificate() types.Certificate
}

// PrivateKey wraps a secp256k1 private key for Schnorr signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Sign produces a Schnorr signature over BLAKE3(msg).
func (pk *PrivateKey) Sign(msg []byte) (types.Signature, error) {
	hash := Hash(msg)
	sig, err := schnorr.Sign(pk.key, hash[:])
	if err != nil {
		return types.Signature{}, fmt.Errorf("schnorr sign: %w", err)
	}
	var out types.Signature
	copy(out[:], sig.Serialize())
	return out, nil
}

// Certificate returns the compressed public key as a certificate.
func (pk *PrivateKey) Certificate() types.Certificate {
	var cert types.Certificate
	copy(cert[:], pk.key.PubKey().SerializeCompressed())
	return cert
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// Verify checks a Schnorr signature over BLAKE3(msg) against a
// certificate. Returns false on any error.
func Verify(cert types.Certificate, msg []byte, sig types.Signature) bool {
	pubKey, err := secp256k1.ParsePubKey(cert[:])
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	hash := Hash(msg)
	return parsed.Verify(hash[:], pubKey)
}
