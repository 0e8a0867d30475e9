package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs   = errors.New("transaction has no inputs")
	ErrZeroOutput = errors.New("output amount is zero")
	ErrNotOwner   = fmt.Errorf("signer owns no input: %w", types.ErrSignatureInvalid)
	ErrSettled    = errors.New("transaction already settled")
)

// Validate checks the transaction and, on success, returns the only value
// settlement accepts.
//
// Rules, in order: at least one input, no currency id spent twice, every
// input verifies against its issuer, every distinct owner has a verifying
// signature, no zero outputs, and inputs sum exactly to outputs.
// Signatures by certificates that own no input are ignored.
func (tx *Transaction[C]) Validate() (*Validated[C], error) {
	if len(tx.Inputs) == 0 {
		return nil, ErrNoInputs
	}

	seen := make(map[types.Hash]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in == nil {
			return nil, fmt.Errorf("input %d: nil envelope: %w", i, types.ErrSignatureInvalid)
		}
		id := in.Body.CurrencyID()
		if seen[id] {
			return nil, fmt.Errorf("input %d currency %s: %w", i, id, types.ErrDuplicateInput)
		}
		seen[id] = true
	}

	var totalIn uint64
	for i, in := range tx.Inputs {
		if err := currency.Verify(in); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		var err error
		if totalIn, err = types.AddAmount(totalIn, in.Body.Amount()); err != nil {
			return nil, fmt.Errorf("input %d: %w: %w", i, types.ErrValueConservation, err)
		}
	}

	msg := tx.SigningBytes()
	for _, owner := range tx.Owners() {
		if err := tx.verifyOwner(owner, msg); err != nil {
			return nil, err
		}
	}

	var totalOut uint64
	for i, out := range tx.Outputs {
		if out.Amount == 0 {
			return nil, fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		var err error
		if totalOut, err = types.AddAmount(totalOut, out.Amount); err != nil {
			return nil, fmt.Errorf("output %d: %w: %w", i, types.ErrValueConservation, err)
		}
	}
	if totalIn != totalOut {
		return nil, fmt.Errorf("inputs %d, outputs %d: %w", totalIn, totalOut, types.ErrValueConservation)
	}

	v := &Validated[C]{
		txID:    tx.TxID,
		trade:   crypto.Hash(msg),
		outputs: append([]Output(nil), tx.Outputs...),
		issuers: make([]types.Certificate, len(tx.Inputs)),
	}
	for i, in := range tx.Inputs {
		v.issuers[i] = in.Body.Issuer()
	}
	return v, nil
}

// verifyOwner accepts the owner if any of its signature entries verifies.
func (tx *Transaction[C]) verifyOwner(owner types.Certificate, msg []byte) error {
	found := false
	for _, s := range tx.Signs {
		if s.Cert != owner {
			continue
		}
		found = true
		if crypto.Verify(owner, msg, s.Signature) {
			return nil
		}
	}
	if !found {
		return fmt.Errorf("owner %s: %w", owner, types.ErrMissingOwnerSignature)
	}
	return fmt.Errorf("owner %s: %w", owner, types.ErrSignatureInvalid)
}

// CheckValidated reports whether Validate succeeds.
func (tx *Transaction[C]) CheckValidated() bool {
	_, err := tx.Validate()
	return err == nil
}
