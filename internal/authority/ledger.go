package authority

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/internal/storage"
	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Ledger errors.
var (
	ErrAlreadySpent = errors.New("currency already spent")
	ErrStaleBinding = errors.New("currency was re-bound after this envelope")
)

// ledger tracks the circulation of one currency shape in the authority's
// store. Ids consumed by a settlement or conversion live under
// spent/<name>/, and the envelope that currently binds a re-bound id
// lives under bound/<name>/. Callers hold Authority.ledgerMu.
type ledger struct {
	spent *storage.PrefixDB // currency id -> consuming operation id
	bound *storage.PrefixDB // currency id -> hash of the current envelope
}

func newLedger(db storage.DB, name string) *ledger {
	return &ledger{
		spent: storage.NewPrefixDB(db, []byte("spent/"+name+"/")),
		bound: storage.NewPrefixDB(db, []byte("bound/"+name+"/")),
	}
}

// envelopeHash identifies one particular binding of a unit.
func envelopeHash[B envelope.Body](e *envelope.Envelope[B]) types.Hash {
	return crypto.Hash(e.Bytes())
}

// spentBy returns the operation that consumed id, if any.
func (l *ledger) spentBy(id types.Hash) (types.Hash, bool, error) {
	raw, err := l.spent.Get(id[:])
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, err
	}
	var op types.Hash
	copy(op[:], raw)
	return op, true, nil
}

func (l *ledger) checkUnspent(id types.Hash) error {
	op, ok, err := l.spentBy(id)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("currency %s spent by %s: %w", id, op, ErrAlreadySpent)
	}
	return nil
}

// checkCurrent rejects id if it was consumed, or if it was re-bound and
// current is not the hash of its latest envelope. Ids never re-bound
// accept their issued envelope.
func (l *ledger) checkCurrent(id, current types.Hash) error {
	if err := l.checkUnspent(id); err != nil {
		return err
	}
	raw, err := l.bound.Get(id[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(raw, current[:]) {
		return fmt.Errorf("currency %s: %w", id, ErrStaleBinding)
	}
	return nil
}

// consume records ids as spent by op in one batch.
func (l *ledger) consume(ids []types.Hash, op types.Hash) error {
	batch := l.spent.NewBatch()
	for _, id := range ids {
		if err := batch.Put(id[:], op[:]); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("record spent inputs: %w", err)
	}
	return nil
}

// rebind makes the envelope hashing to current the only valid binding of id.
func (l *ledger) rebind(id, current types.Hash) error {
	if err := l.bound.Put(id[:], current[:]); err != nil {
		return fmt.Errorf("record binding: %w", err)
	}
	return nil
}

func (l *ledger) isSpent(id types.Hash) bool {
	ok, err := l.spent.Has(id[:])
	return err == nil && ok
}

func (l *ledger) spentCount() (int, error) {
	n := 0
	err := l.spent.ForEach(nil, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
