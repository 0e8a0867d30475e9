package wallet

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/tx"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Purse errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrEmptyPurse        = errors.New("no currency available")
	ErrNotOwned          = errors.New("currency owned by another certificate")
)

// Selection is the result of coin selection.
type Selection[C currency.Unit] struct {
	Inputs []*envelope.Envelope[C]
	Total  uint64
	Change uint64
}

// Purse holds the verified currency owned by one certificate. A Purse is
// not safe for concurrent use.
type Purse[C currency.Unit] struct {
	owner types.Certificate
	units map[types.Hash]*envelope.Envelope[C]
}

// NewPurse creates an empty purse for owner.
func NewPurse[C currency.Unit](owner types.Certificate) *Purse[C] {
	return &Purse[C]{owner: owner, units: make(map[types.Hash]*envelope.Envelope[C])}
}

// Owner returns the purse's certificate.
func (p *Purse[C]) Owner() types.Certificate { return p.owner }

// Add verifies a unit and stores it. The unit must be owned by the purse.
func (p *Purse[C]) Add(e *envelope.Envelope[C]) error {
	if err := currency.Verify(e); err != nil {
		return err
	}
	if e.Body.Owner() != p.owner {
		return fmt.Errorf("currency %s: %w", e.Body.CurrencyID(), ErrNotOwned)
	}
	id := e.Body.CurrencyID()
	if _, ok := p.units[id]; ok {
		return fmt.Errorf("currency %s: %w", id, types.ErrDuplicateInput)
	}
	p.units[id] = e
	return nil
}

// Remove drops spent units.
func (p *Purse[C]) Remove(ids ...types.Hash) {
	for _, id := range ids {
		delete(p.units, id)
	}
}

// Units returns the held units ordered by amount, then id.
func (p *Purse[C]) Units() []*envelope.Envelope[C] {
	out := make([]*envelope.Envelope[C], 0, len(p.units))
	for _, e := range p.units {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *envelope.Envelope[C]) int {
		if a.Body.Amount() != b.Body.Amount() {
			if a.Body.Amount() < b.Body.Amount() {
				return -1
			}
			return 1
		}
		ai, bi := a.Body.CurrencyID(), b.Body.CurrencyID()
		return slices.Compare(ai[:], bi[:])
	})
	return out
}

// Balance returns the total held.
func (p *Purse[C]) Balance() (uint64, error) {
	var total uint64
	for _, e := range p.units {
		var err error
		if total, err = types.AddAmount(total, e.Body.Amount()); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Pay builds an unsigned transaction that sends amount to recipient and
// any change back to the purse owner. The spent units stay in the purse
// until the caller removes them after settlement.
func (p *Purse[C]) Pay(d *derive.Deriver, recipient types.Certificate, amount uint64) (*tx.Transaction[C], error) {
	sel, err := SelectCoins(p.Units(), amount)
	if err != nil {
		return nil, err
	}
	b := tx.NewBuilder[C]().AddInputs(sel.Inputs...).AddOutput(recipient, amount)
	if sel.Change > 0 {
		b.AddOutput(p.owner, sel.Change)
	}
	return b.Build(d)
}

// SelectCoins chooses units covering target. It tries the smallest single
// unit that covers the target and a largest-first accumulation, and
// returns whichever leaves less change.
func SelectCoins[C currency.Unit](units []*envelope.Envelope[C], target uint64) (*Selection[C], error) {
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}
	candidates := make([]*envelope.Envelope[C], 0, len(units))
	for _, u := range units {
		if u.Body.Amount() > 0 {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyPurse
	}
	slices.SortStableFunc(candidates, func(a, b *envelope.Envelope[C]) int {
		switch {
		case a.Body.Amount() < b.Body.Amount():
			return -1
		case a.Body.Amount() > b.Body.Amount():
			return 1
		}
		return 0
	})

	var single *Selection[C]
	for _, u := range candidates {
		if v := u.Body.Amount(); v >= target {
			single = &Selection[C]{Inputs: []*envelope.Envelope[C]{u}, Total: v, Change: v - target}
			break
		}
	}

	var accum *Selection[C]
	var (
		selected []*envelope.Envelope[C]
		total    uint64
	)
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		next, err := types.AddAmount(total, candidates[i].Body.Amount())
		if err != nil {
			return nil, err
		}
		total = next
		if total >= target {
			accum = &Selection[C]{Inputs: selected, Total: total, Change: total - target}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, target)
	}
}
