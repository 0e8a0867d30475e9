package main

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/config"
	"github.com/Klingon-tech/klingnet-quota/internal/authority"
	"github.com/Klingon-tech/klingnet-quota/internal/log"
	"github.com/Klingon-tech/klingnet-quota/internal/wallet"
	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
	"github.com/Klingon-tech/klingnet-quota/pkg/tx"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// demoSchedule issues eight tokens worth 250.
var demoSchedule = []quota.Denomination{{Value: 10, Count: 5}, {Value: 50, Count: 2}, {Value: 100, Count: 1}}

type demoParty struct {
	name string
	key  *crypto.PrivateKey
}

type demoOutput struct {
	Shape       config.Shape      `json:"shape"`
	Issuer      string            `json:"issuer"`
	IssueID     string            `json:"issue_id"`
	Tokens      int               `json:"tokens"`
	Transaction record            `json:"transaction"`
	TradeHash   string            `json:"trade_hash"`
	Minted      []record          `json:"minted"`
	Payment     string            `json:"payment_txid"`
	Transfer    record            `json:"transfer"`
	Balances    map[string]uint64 `json:"balances"`
	Spent       int               `json:"spent"`
}

// cmdDemo runs the whole flow with throwaway keys derived from a fresh
// mnemonic: issue 10x5, 50x2, 100x1; give the 100 to bob and the rest to
// alice; have both pay carol 250 in one transaction; settle it; let carol
// pay dave 100 from her purse; and have carol hand her change to alice
// with a transfer.
func (c *cli) cmdDemo() error {
	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return err
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return err
	}
	var parties [5]demoParty
	for i, name := range []string{"issuer", "alice", "bob", "carol", "dave"} {
		account := uint32(1)
		if i == 0 {
			account = 0
		}
		hd, err := master.DeriveKey(account, wallet.ChangeExternal, uint32(i))
		if err != nil {
			return err
		}
		key, err := hd.Signer()
		if err != nil {
			return err
		}
		parties[i] = demoParty{name: name, key: key}
	}

	a, err := authority.New(parties[0].key, authority.WithMaxTokens(c.cfg.Issue.MaxTokens))
	if err != nil {
		return err
	}
	issued, err := a.Issue(demoSchedule)
	if err != nil {
		return err
	}

	var out *demoOutput
	if c.cfg.Shape == config.ShapeSelfMinted {
		out, err = runDemo(authority.NewSelfMintedSettler(a), parties, issued, func(owner types.Certificate, tok *quota.SignedToken) (*currency.SignedSelfMinted, error) {
			return a.IssueSelfMinted(owner, tok.Body.Value, nil, tok.Body.ID.Bytes())
		})
	} else {
		out, err = runDemo(authority.NewQuotaBackedSettler(a), parties, issued, func(owner types.Certificate, tok *quota.SignedToken) (*currency.SignedQuotaBacked, error) {
			units, err := a.Bind(owner, tok)
			if err != nil {
				return nil, err
			}
			return units[0], nil
		})
	}
	if err != nil {
		return err
	}
	out.Shape = c.cfg.Shape
	out.Issuer = a.Certificate().String()
	out.IssueID = issued.Request.Body.IssueID.String()
	out.Tokens = len(issued.Tokens)
	return c.printJSON(out)
}

func runDemo[C currency.Unit](
	settler *authority.Settler[C],
	parties [5]demoParty,
	issued *authority.Issued,
	fund func(types.Certificate, *quota.SignedToken) (*envelope.Envelope[C], error),
) (*demoOutput, error) {
	alice, bob, carol, dave := parties[1], parties[2], parties[3], parties[4]
	purses := make(map[string]*wallet.Purse[C])
	for _, p := range parties[1:] {
		purses[p.name] = wallet.NewPurse[C](p.key.Certificate())
	}

	for _, tok := range issued.Tokens {
		owner := alice
		if tok.Body.Value == 100 {
			owner = bob
		}
		unit, err := fund(owner.key.Certificate(), tok)
		if err != nil {
			return nil, err
		}
		if err := purses[owner.name].Add(unit); err != nil {
			return nil, err
		}
	}

	// Alice and bob pay carol everything in one transaction.
	d := derive.Default()
	payment, err := tx.NewBuilder[C]().
		AddInputs(purses[alice.name].Units()...).
		AddInputs(purses[bob.name].Units()...).
		AddOutput(carol.key.Certificate(), 250).
		Build(d)
	if err != nil {
		return nil, err
	}
	if err := tx.SignMulti(payment, alice.key, bob.key); err != nil {
		return nil, err
	}
	minted, err := settle(settler, payment, purses)
	if err != nil {
		return nil, err
	}

	// Carol pays dave 100 out of her purse.
	second, err := purses[carol.name].Pay(d, dave.key.Certificate(), 100)
	if err != nil {
		return nil, err
	}
	if err := second.Sign(carol.key); err != nil {
		return nil, err
	}
	if _, err := settle(settler, second, purses); err != nil {
		return nil, err
	}

	// Carol hands her change unit to alice.
	change := purses[carol.name].Units()
	if len(change) != 1 {
		return nil, fmt.Errorf("carol holds %d units, want 1", len(change))
	}
	t, err := tx.NewTransfer(d, change[0], alice.key.Certificate())
	if err != nil {
		return nil, err
	}
	signedTransfer, err := envelope.Seal(envelope.TagTransfer, t, carol.key)
	if err != nil {
		return nil, err
	}
	moved, err := settler.Transfer(signedTransfer)
	if err != nil {
		return nil, err
	}
	purses[carol.name].Remove(change[0].Body.CurrencyID())
	if err := purses[alice.name].Add(moved); err != nil {
		return nil, err
	}

	// The issuer countersigns the settled transaction as a record.
	settled, err := envelope.Seal(envelope.TagTransaction, payment, parties[0].key)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]uint64, len(purses))
	for name, p := range purses {
		if balances[name], err = p.Balance(); err != nil {
			return nil, err
		}
	}
	spent, err := settler.SpentCount()
	if err != nil {
		return nil, err
	}
	log.CLI.Info().
		Uint64("alice", balances[alice.name]).
		Uint64("carol", balances[carol.name]).
		Uint64("dave", balances[dave.name]).
		Msg("Demo complete")

	return &demoOutput{
		Transaction: newRecord(settled),
		TradeHash:   payment.Hash().String(),
		Minted:      newRecords(minted),
		Payment:     second.TxID.String(),
		Transfer:    newRecord(signedTransfer),
		Balances:    balances,
		Spent:       spent,
	}, nil
}

// settle settles t, moves its inputs out of their owners' purses and its
// outputs into the recipients' purses.
func settle[C currency.Unit](s *authority.Settler[C], t *tx.Transaction[C], purses map[string]*wallet.Purse[C]) ([]*envelope.Envelope[C], error) {
	minted, err := s.Settle(t)
	if err != nil {
		return nil, err
	}
	for _, in := range t.Inputs {
		for _, p := range purses {
			p.Remove(in.Body.CurrencyID())
		}
	}
	for _, m := range minted {
		for _, p := range purses {
			if p.Owner() == m.Body.Owner() {
				if err := p.Add(m); err != nil {
					return nil, err
				}
				log.Wallet.Debug().
					Str("owner", p.Owner().String()).
					Str("currency_id", m.Body.CurrencyID().String()).
					Uint64("amount", m.Body.Amount()).
					Msg("Received currency")
			}
		}
	}
	return minted, nil
}
