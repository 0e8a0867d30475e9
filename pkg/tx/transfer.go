package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// Transfer moves one whole unit to a new owner. The payer signs the
// transfer envelope and the issuer applies it by re-binding the unit.
type Transfer[C currency.Unit] struct {
	TxID   types.Hash            `json:"txid"`
	Target types.Certificate     `json:"target"`
	Input  *envelope.Envelope[C] `json:"input"`
}

// NewTransfer builds a transfer with txid = Derive(input, target, timestamp).
func NewTransfer[C currency.Unit](d *derive.Deriver, input *envelope.Envelope[C], target types.Certificate) (*Transfer[C], error) {
	id, err := d.Derive(input.Bytes(), target[:], derive.Int64(d.Now()))
	if err != nil {
		return nil, fmt.Errorf("transfer id: %w", err)
	}
	return &Transfer[C]{TxID: id, Target: target, Input: input}, nil
}

// Bytes returns the wire encoding:
//
//	txid[32] | target[33] | envelope(currency)
func (t *Transfer[C]) Bytes() []byte {
	w := wire.NewWriter(types.HashSize + types.CertificateSize)
	w.Raw(t.TxID[:])
	w.Raw(t.Target[:])
	w.Raw(t.Input.Bytes())
	return w.Bytes()
}

// DecodeTransfer parses a transfer whose input is decoded with decode.
func DecodeTransfer[C currency.Unit](data []byte, decode envelope.Decoder[C]) (*Transfer[C], error) {
	r := wire.NewReader(data)
	var (
		t   Transfer[C]
		err error
	)
	if t.TxID, err = r.Hash(); err != nil {
		return nil, err
	}
	if t.Target, err = r.Certificate(); err != nil {
		return nil, err
	}
	if t.Input, err = envelope.Read(r, envelope.TagDigitalCurrency, decode); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &t, nil
}

// ApplyTransfer checks a payer-signed transfer and re-binds its input to
// the target. The envelope signer must own the input and the input must
// have been issued by key.
func ApplyTransfer[C currency.Unit](key crypto.Signer, signed *envelope.Envelope[*Transfer[C]], reassign currency.Reassigner[C]) (*envelope.Envelope[C], error) {
	if err := signed.VerifyHeader(); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	t := signed.Body
	if err := currency.VerifyIssuedBy(t.Input, key.Certificate()); err != nil {
		return nil, fmt.Errorf("transfer input: %w", err)
	}
	if payer := signed.Signer(); t.Input.Body.Owner() != payer {
		return nil, fmt.Errorf("transfer signed by %s: %w", payer, currency.ErrNotOwner)
	}
	return reassign(key, t.Input, t.Target)
}
