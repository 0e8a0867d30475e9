package wallet

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

func testDeriver() *derive.Deriver {
	var seed [32]byte
	return derive.New(rand.NewChaCha8(seed), derive.FixedClock(1_700_000_000_000))
}

func testKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key
}

// makeUnits issues self-minted units of the given amounts to owner.
func makeUnits(t *testing.T, issuer *crypto.PrivateKey, owner types.Certificate, amounts ...uint64) []*currency.SignedSelfMinted {
	t.Helper()
	d := testDeriver()
	out := make([]*currency.SignedSelfMinted, 0, len(amounts))
	for _, a := range amounts {
		c, err := currency.Issue(issuer, d, owner, a, nil, nil)
		if err != nil {
			t.Fatalf("Issue() error: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func TestSelectCoins(t *testing.T) {
	issuer, owner := testKey(t), testKey(t)
	tests := []struct {
		name       string
		amounts    []uint64
		target     uint64
		wantTotal  uint64
		wantInputs int
	}{
		{"exact single", []uint64{1000, 2000, 3000}, 2000, 2000, 1},
		{"single with change", []uint64{5000}, 3000, 5000, 1},
		{"must combine", []uint64{1000, 2000, 1500}, 4000, 4500, 3},
		{"exact beats largest", []uint64{1000, 2000, 3000, 5000}, 3000, 3000, 1},
		{"combine exact", []uint64{3000, 2500, 2000}, 5500, 5500, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectCoins(makeUnits(t, issuer, owner.Certificate(), tt.amounts...), tt.target)
			if err != nil {
				t.Fatalf("SelectCoins() error: %v", err)
			}
			if sel.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", sel.Total, tt.wantTotal)
			}
			if sel.Change != sel.Total-tt.target {
				t.Errorf("change = %d, want %d", sel.Change, sel.Total-tt.target)
			}
			if len(sel.Inputs) != tt.wantInputs {
				t.Errorf("inputs = %d, want %d", len(sel.Inputs), tt.wantInputs)
			}
		})
	}
}

func TestSelectCoins_Errors(t *testing.T) {
	issuer, owner := testKey(t), testKey(t)
	units := makeUnits(t, issuer, owner.Certificate(), 10, 20)

	if _, err := SelectCoins(units, 31); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("SelectCoins(31) error = %v, want ErrInsufficientFunds", err)
	}
	if _, err := SelectCoins[*currency.SelfMinted](nil, 1); !errors.Is(err, ErrEmptyPurse) {
		t.Errorf("SelectCoins(empty) error = %v, want ErrEmptyPurse", err)
	}
	if _, err := SelectCoins(units, 0); err == nil {
		t.Error("SelectCoins(0) should fail")
	}
}

func TestPurse_AddAndBalance(t *testing.T) {
	issuer, owner, other := testKey(t), testKey(t), testKey(t)
	p := NewPurse[*currency.SelfMinted](owner.Certificate())

	for _, u := range makeUnits(t, issuer, owner.Certificate(), 10, 50, 100) {
		if err := p.Add(u); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	if bal, _ := p.Balance(); bal != 160 {
		t.Errorf("Balance() = %d, want 160", bal)
	}

	units := p.Units()
	if units[0].Body.Amount() != 10 || units[2].Body.Amount() != 100 {
		t.Error("Units() should be ordered by amount")
	}
	if err := p.Add(units[0]); !errors.Is(err, types.ErrDuplicateInput) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateInput", err)
	}
	if err := p.Add(makeUnits(t, issuer, other.Certificate(), 5)[0]); !errors.Is(err, ErrNotOwned) {
		t.Errorf("Add(foreign) error = %v, want ErrNotOwned", err)
	}

	p.Remove(units[0].Body.CurrencyID())
	if bal, _ := p.Balance(); bal != 150 {
		t.Errorf("Balance() after Remove = %d, want 150", bal)
	}
}

func TestPurse_Pay(t *testing.T) {
	issuer, owner, bob := testKey(t), testKey(t), testKey(t)
	p := NewPurse[*currency.SelfMinted](owner.Certificate())
	for _, u := range makeUnits(t, issuer, owner.Certificate(), 30, 40) {
		if err := p.Add(u); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	payment, err := p.Pay(testDeriver(), bob.Certificate(), 50)
	if err != nil {
		t.Fatalf("Pay() error: %v", err)
	}
	if len(payment.Outputs) != 2 {
		t.Fatalf("outputs = %d, want payment and change", len(payment.Outputs))
	}
	if payment.Outputs[1].Recipient != owner.Certificate() || payment.Outputs[1].Amount != 20 {
		t.Errorf("change output = %+v, want 20 back to owner", payment.Outputs[1])
	}
	if err := payment.Sign(owner); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !payment.CheckValidated() {
		t.Error("payment should validate once the owner signs")
	}
}
