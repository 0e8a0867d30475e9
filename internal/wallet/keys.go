// Package wallet derives issuer and owner keys from a BIP-39 mnemonic and
// tracks the currency a key holds.
package wallet

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
)

const (
	// MnemonicEntropyBits gives 24-word mnemonics.
	MnemonicEntropyBits = 256

	// SeedSize is the BIP-39 seed length in bytes.
	SeedSize = 64
)

// ErrInvalidMnemonic is returned for a phrase that fails BIP-39 checks.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// GenerateMnemonic creates a new 24-word mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks word list membership, word count and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic stretches a mnemonic and optional passphrase into a
// 64-byte seed.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}

// KeyFromMnemonic derives the signing key at m/44'/coin'/account'/0/index.
func KeyFromMnemonic(mnemonic, passphrase string, account, index uint32) (*crypto.PrivateKey, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	hd, err := master.DeriveKey(account, ChangeExternal, index)
	if err != nil {
		return nil, err
	}
	return hd.Signer()
}
