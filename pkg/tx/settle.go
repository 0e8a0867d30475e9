package tx

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Validated is a snapshot of a transaction that passed Validate. Later
// changes to the transaction do not affect it. It can be settled once.
type Validated[C currency.Unit] struct {
	txID    types.Hash
	trade   types.Hash
	outputs []Output
	issuers []types.Certificate

	mu      sync.Mutex
	settled bool
}

// TxID returns the id of the validated transaction.
func (v *Validated[C]) TxID() types.Hash { return v.txID }

// TradeHash returns the hash that links minted currency to this transaction.
func (v *Validated[C]) TradeHash() types.Hash { return v.trade }

// Outputs returns a copy of the validated outputs.
func (v *Validated[C]) Outputs() []Output {
	return append([]Output(nil), v.outputs...)
}

// GenNewCurrency mints one unit per output, owned by the output's
// recipient and signed by key. Every input must have been issued by key.
// A second successful call returns ErrSettled.
func (v *Validated[C]) GenNewCurrency(key crypto.Signer, mint currency.Minter[C]) ([]*envelope.Envelope[C], error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.settled {
		return nil, fmt.Errorf("%s: %w", v.txID, ErrSettled)
	}

	issuer := key.Certificate()
	for i, in := range v.issuers {
		if in != issuer {
			return nil, fmt.Errorf("input %d issued by %s: %w", i, in, currency.ErrNotIssuer)
		}
	}

	out := make([]*envelope.Envelope[C], 0, len(v.outputs))
	for i, o := range v.outputs {
		c, err := mint(key, o.Recipient, o.Amount, v.trade)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out = append(out, c)
	}
	v.settled = true
	return out, nil
}
