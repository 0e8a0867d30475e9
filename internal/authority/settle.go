package authority

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/tx"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Settler settles transactions and transfers of one currency shape for an
// Authority. Every input must be the current binding of an unspent unit.
// Settled inputs are recorded as spent; transferred units are re-bound so
// their earlier envelopes stop being accepted.
type Settler[C currency.Unit] struct {
	auth      *Authority
	newMinter func(*derive.Deriver) currency.Minter[C]
	reassign  currency.Reassigner[C]
	ledger    *ledger
}

// NewSettler creates a Settler whose ledger lives under name in the
// authority's store. newMinter builds the minter for the authority's
// deriver.
func NewSettler[C currency.Unit](a *Authority, name string, newMinter func(*derive.Deriver) currency.Minter[C], reassign currency.Reassigner[C]) *Settler[C] {
	return &Settler[C]{
		auth:      a,
		newMinter: newMinter,
		reassign:  reassign,
		ledger:    newLedger(a.db, name),
	}
}

// NewQuotaBackedSettler settles quota-backed currency. It shares its
// ledger with the authority's quota conversions.
func NewQuotaBackedSettler(a *Authority) *Settler[*currency.QuotaBacked] {
	return NewSettler[*currency.QuotaBacked](a, quotaLedger, currency.MintQuotaBacked, currency.Reassign)
}

// NewSelfMintedSettler settles self-minted currency.
func NewSelfMintedSettler(a *Authority) *Settler[*currency.SelfMinted] {
	return NewSettler[*currency.SelfMinted](a, "selfminted", currency.MintSelfMinted, currency.ReassignSelfMinted)
}

// Settle validates t and mints its outputs. The inputs are recorded as
// spent only when minting succeeds.
func (s *Settler[C]) Settle(t *tx.Transaction[C]) ([]*envelope.Envelope[C], error) {
	if t == nil {
		return nil, tx.ErrNoInputs
	}
	s.auth.ledgerMu.Lock()
	defer s.auth.ledgerMu.Unlock()

	ids := make([]types.Hash, len(t.Inputs))
	for i, in := range t.Inputs {
		if in == nil {
			return nil, fmt.Errorf("input %d: nil envelope: %w", i, types.ErrSignatureInvalid)
		}
		ids[i] = in.Body.CurrencyID()
		if err := s.ledger.checkCurrent(ids[i], envelopeHash(in)); err != nil {
			s.auth.logger.Warn().Err(err).Str("txid", t.TxID.String()).Msg("Transaction rejected")
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	v, err := t.Validate()
	if err != nil {
		s.auth.logger.Warn().Err(err).Str("txid", t.TxID.String()).Msg("Transaction rejected")
		return nil, err
	}

	var out []*envelope.Envelope[C]
	err = s.auth.withDeriver(func(d *derive.Deriver) error {
		var err error
		out, err = v.GenNewCurrency(s.auth.key, s.newMinter(d))
		return err
	})
	if err != nil {
		s.auth.logger.Warn().Err(err).Str("txid", v.TxID().String()).Msg("Settlement failed")
		return nil, err
	}
	if err := s.ledger.consume(ids, v.TxID()); err != nil {
		return nil, err
	}
	s.auth.logger.Info().
		Str("txid", v.TxID().String()).
		Str("trade_hash", v.TradeHash().String()).
		Int("inputs", len(ids)).
		Int("outputs", len(out)).
		Msg("Settled transaction")
	return out, nil
}

// Transfer re-binds the input of a payer-signed transfer to its target.
// The unit keeps its currency id; the new envelope becomes its only
// accepted binding.
func (s *Settler[C]) Transfer(signed *envelope.Envelope[*tx.Transfer[C]]) (*envelope.Envelope[C], error) {
	if signed == nil || signed.Body == nil || signed.Body.Input == nil {
		return nil, fmt.Errorf("empty transfer: %w", types.ErrSignatureInvalid)
	}
	s.auth.ledgerMu.Lock()
	defer s.auth.ledgerMu.Unlock()

	in := signed.Body.Input
	id := in.Body.CurrencyID()
	if err := s.ledger.checkCurrent(id, envelopeHash(in)); err != nil {
		s.auth.logger.Warn().Err(err).Str("txid", signed.Body.TxID.String()).Msg("Transfer rejected")
		return nil, err
	}
	out, err := tx.ApplyTransfer(s.auth.key, signed, s.reassign)
	if err != nil {
		s.auth.logger.Warn().Err(err).Str("txid", signed.Body.TxID.String()).Msg("Transfer rejected")
		return nil, err
	}
	if err := s.ledger.rebind(id, envelopeHash(out)); err != nil {
		return nil, err
	}
	s.auth.logger.Info().
		Str("txid", signed.Body.TxID.String()).
		Str("currency_id", id.String()).
		Str("target", signed.Body.Target.String()).
		Msg("Transferred currency")
	return out, nil
}

// Spent reports whether a settlement or conversion consumed id.
func (s *Settler[C]) Spent(id types.Hash) bool {
	s.auth.ledgerMu.Lock()
	defer s.auth.ledgerMu.Unlock()
	return s.ledger.isSpent(id)
}

// SpentCount returns how many currency ids have been consumed.
func (s *Settler[C]) SpentCount() (int, error) {
	s.auth.ledgerMu.Lock()
	defer s.auth.ledgerMu.Unlock()
	return s.ledger.spentCount()
}
