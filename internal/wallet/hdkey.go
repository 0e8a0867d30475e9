package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Derivation path m/44'/CoinTypeQuota'/account'/change/index.
const (
	PurposeBIP44  = bip32.FirstHardenedChild + 44
	CoinTypeQuota = bip32.FirstHardenedChild + 8889

	// ChangeExternal keys receive currency.
	ChangeExternal = 0
	// ChangeInternal keys receive change from payments.
	ChangeInternal = 1
)

// HDKey is a BIP-32 extended key.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates the root key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives one level. Add bip32.FirstHardenedChild for a
// hardened child.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveKey derives the key at m/44'/8889'/account'/change/index.
func (k *HDKey) DeriveKey(account, change, index uint32) (*HDKey, error) {
	return k.DerivePath(PurposeBIP44, CoinTypeQuota, bip32.FirstHardenedChild+account, change, index)
}

// PrivateKeyBytes returns the raw 32-byte scalar, or nil for a public key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 stores private keys with a leading zero byte.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// Certificate returns the compressed public key as a certificate.
func (k *HDKey) Certificate() (types.Certificate, error) {
	return types.CertificateFromBytes(k.key.PublicKey().Key)
}

// Signer returns the signing key. Fails for a neutered key.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot create signer from public key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

func (k *HDKey) IsPrivate() bool { return k.key.IsPrivate }

func (k *HDKey) Depth() uint8 { return k.key.Depth }

// Neuter returns a public-only copy, enough to compute certificates.
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}
