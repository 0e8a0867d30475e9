// Package currency defines the spendable unit held by a wallet.
//
// Two shapes exist and a deployment picks one: QuotaBacked wraps a signed
// quota token and names its owner, SelfMinted carries its own identity and
// amount. Both are issued and re-bound only by their issuer.
package currency

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Currency errors.
var (
	ErrNotIssuer = fmt.Errorf("currency not issued by this key: %w", types.ErrSignatureInvalid)
	ErrNotOwner  = fmt.Errorf("request not signed by the currency owner: %w", types.ErrSignatureInvalid)
)

// Unit is a currency body.
type Unit interface {
	envelope.Body

	// CurrencyID identifies the unit; two units with the same id are the
	// same money.
	CurrencyID() types.Hash
	Owner() types.Certificate
	Amount() uint64
	Issuer() types.Certificate

	// Verify checks any signed material embedded in the unit itself.
	Verify() error
}

// Minter creates a new issuer-signed unit owned by owner.
type Minter[C Unit] func(key crypto.Signer, owner types.Certificate, amount uint64, tradeHash types.Hash) (*envelope.Envelope[C], error)

// Reassigner re-binds an existing unit to a new owner.
type Reassigner[C Unit] func(key crypto.Signer, current *envelope.Envelope[C], owner types.Certificate) (*envelope.Envelope[C], error)

// Verify checks that a currency envelope is signed by the unit's issuer
// and that the unit's embedded material verifies.
func Verify[C Unit](e *envelope.Envelope[C]) error {
	if e == nil {
		return fmt.Errorf("nil currency envelope: %w", types.ErrSignatureInvalid)
	}
	if err := e.Body.Verify(); err != nil {
		return err
	}
	return e.VerifySignedBy(e.Body.Issuer())
}

// VerifyIssuedBy is Verify plus a check that issuer minted the unit.
func VerifyIssuedBy[C Unit](e *envelope.Envelope[C], issuer types.Certificate) error {
	if err := Verify(e); err != nil {
		return err
	}
	if e.Body.Issuer() != issuer {
		return fmt.Errorf("currency %s issued by %s: %w", e.Body.CurrencyID(), e.Body.Issuer(), ErrNotIssuer)
	}
	return nil
}
