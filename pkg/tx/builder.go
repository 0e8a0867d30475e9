package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder[C currency.Unit] struct {
	inputs  []*envelope.Envelope[C]
	outputs []Output
}

// NewBuilder creates a new transaction builder.
func NewBuilder[C currency.Unit]() *Builder[C] {
	return &Builder[C]{}
}

// AddInput adds a currency unit to spend.
func (b *Builder[C]) AddInput(in *envelope.Envelope[C]) *Builder[C] {
	b.inputs = append(b.inputs, in)
	return b
}

// AddInputs adds several currency units to spend.
func (b *Builder[C]) AddInputs(in ...*envelope.Envelope[C]) *Builder[C] {
	b.inputs = append(b.inputs, in...)
	return b
}

// AddOutput pays amount to recipient.
func (b *Builder[C]) AddOutput(recipient types.Certificate, amount uint64) *Builder[C] {
	b.outputs = append(b.outputs, Output{Recipient: recipient, Amount: amount})
	return b
}

// Build derives the txid and returns the unsigned transaction.
// Does NOT validate; call Validate separately.
func (b *Builder[C]) Build(d *derive.Deriver) (*Transaction[C], error) {
	return New(d, b.inputs, b.outputs)
}

// SignMulti signs tx with every key that owns an input. Keys that own no
// input are skipped; an owner without a key is an error.
func SignMulti[C currency.Unit](tx *Transaction[C], keys ...crypto.Signer) error {
	byCert := make(map[types.Certificate]crypto.Signer, len(keys))
	for _, k := range keys {
		byCert[k.Certificate()] = k
	}
	for _, owner := range tx.Owners() {
		key, ok := byCert[owner]
		if !ok {
			return fmt.Errorf("no signer for owner %s", owner)
		}
		if err := tx.Sign(key); err != nil {
			return err
		}
	}
	return nil
}
