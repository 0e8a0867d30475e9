package tx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/currency"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

func TestSettle_EndToEnd(t *testing.T) {
	d := testDeriver(1)
	issuer, alice, bob, carol := testKey(t), testKey(t), testKey(t), testKey(t)

	// Issue 10x5, 50x2, 100x1: eight tokens worth 250.
	req, err := quota.NewIssueRequest(d, []quota.Denomination{{Value: 10, Count: 5}, {Value: 50, Count: 2}, {Value: 100, Count: 1}}, issuer.Certificate())
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	tokens, err := req.QuotaDistribution(d)
	if err != nil {
		t.Fatalf("QuotaDistribution() error: %v", err)
	}
	if len(tokens) != 8 {
		t.Fatalf("minted %d tokens, want 8", len(tokens))
	}
	sealed, err := quota.Seal(tokens, issuer)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	// The 100 goes to bob, the rest to alice.
	var inputs []*currency.SignedQuotaBacked
	for _, tok := range sealed {
		owner := alice.Certificate()
		if tok.Body.Value == 100 {
			owner = bob.Certificate()
		}
		c, err := currency.Bind(issuer, tok, owner)
		if err != nil {
			t.Fatalf("Bind() error: %v", err)
		}
		inputs = append(inputs, c)
	}

	tx, err := New(d, inputs, []Output{{Recipient: carol.Certificate(), Amount: 250}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := tx.Sign(alice); err != nil {
		t.Fatalf("Sign(alice) error: %v", err)
	}
	if tx.CheckValidated() {
		t.Fatal("transaction should not validate with one of two signatures")
	}
	if err := tx.Sign(bob); err != nil {
		t.Fatalf("Sign(bob) error: %v", err)
	}
	if !tx.CheckValidated() {
		t.Fatal("CheckValidated() should be true after both signatures")
	}

	v, err := tx.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	minted, err := v.GenNewCurrency(issuer, currency.MintQuotaBacked(d))
	if err != nil {
		t.Fatalf("GenNewCurrency() error: %v", err)
	}
	if len(minted) != 1 {
		t.Fatalf("minted %d currencies, want 1", len(minted))
	}
	c := minted[0]
	if c.Body.Amount() != 250 {
		t.Errorf("Amount() = %d, want 250", c.Body.Amount())
	}
	if c.Body.Owner() != carol.Certificate() {
		t.Error("new currency should belong to the recipient")
	}
	if c.Body.QuotaInfo.Body.TradeHash != tx.Hash() {
		t.Error("new currency should carry the transaction hash")
	}
	if err := currency.VerifyIssuedBy(c, issuer.Certificate()); err != nil {
		t.Errorf("VerifyIssuedBy() error: %v", err)
	}

	if _, err := v.GenNewCurrency(issuer, currency.MintQuotaBacked(d)); !errors.Is(err, ErrSettled) {
		t.Errorf("second GenNewCurrency() error = %v, want ErrSettled", err)
	}
}

func TestSettle_WrongIssuer(t *testing.T) {
	d := testDeriver(2)
	issuer, alice, bob := testKey(t), testKey(t), testKey(t)
	inputs := fund(t, d, issuer, alice.Certificate(), quota.Denomination{Value: 10, Count: 1})
	tx, err := New(d, inputs, []Output{{Recipient: bob.Certificate(), Amount: 10}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := tx.Sign(alice); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	v, err := tx.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if _, err := v.GenNewCurrency(testKey(t), currency.MintQuotaBacked(d)); !errors.Is(err, currency.ErrNotIssuer) {
		t.Errorf("GenNewCurrency(other key) error = %v, want ErrNotIssuer", err)
	}
	// A rejected attempt does not consume the settlement.
	if _, err := v.GenNewCurrency(issuer, currency.MintQuotaBacked(d)); err != nil {
		t.Errorf("GenNewCurrency(issuer) error: %v", err)
	}
}

func TestSettle_SnapshotIgnoresLaterEdits(t *testing.T) {
	d := testDeriver(3)
	issuer, alice, bob := testKey(t), testKey(t), testKey(t)
	inputs := fund(t, d, issuer, alice.Certificate(), quota.Denomination{Value: 10, Count: 1})
	tx, err := New(d, inputs, []Output{{Recipient: bob.Certificate(), Amount: 10}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := tx.Sign(alice); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	v, err := tx.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tx.Outputs[0] = Output{Recipient: alice.Certificate(), Amount: 1_000_000}
	minted, err := v.GenNewCurrency(issuer, currency.MintQuotaBacked(d))
	if err != nil {
		t.Fatalf("GenNewCurrency() error: %v", err)
	}
	if minted[0].Body.Owner() != bob.Certificate() || minted[0].Body.Amount() != 10 {
		t.Error("settlement should use the outputs as validated")
	}
}

func TestSettle_SelfMinted(t *testing.T) {
	d := testDeriver(4)
	issuer, alice, bob := testKey(t), testKey(t), testKey(t)

	var inputs []*currency.SignedSelfMinted
	for _, amount := range []uint64{60, 40} {
		c, err := currency.Issue(issuer, d, alice.Certificate(), amount, nil, nil)
		if err != nil {
			t.Fatalf("Issue() error: %v", err)
		}
		inputs = append(inputs, c)
	}
	tx, err := New(d, inputs, []Output{
		{Recipient: bob.Certificate(), Amount: 70},
		{Recipient: alice.Certificate(), Amount: 30},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := tx.Sign(alice); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	decoded, err := Decode(tx.Bytes(), currency.DecodeSelfMinted)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	v, err := decoded.Validate()
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	minted, err := v.GenNewCurrency(issuer, currency.MintSelfMinted(d))
	if err != nil {
		t.Fatalf("GenNewCurrency() error: %v", err)
	}
	if len(minted) != 2 || minted[0].Body.Amount() != 70 || minted[1].Body.Amount() != 30 {
		t.Errorf("minted %d units with unexpected amounts", len(minted))
	}
}

func sealTransfer[C currency.Unit](t *testing.T, tr *Transfer[C], payer crypto.Signer) *envelope.Envelope[*Transfer[C]] {
	t.Helper()
	e, err := envelope.Seal(envelope.TagTransfer, tr, payer)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	return e
}

func TestTransfer_Apply(t *testing.T) {
	d := testDeriver(5)
	issuer, alice, bob := testKey(t), testKey(t), testKey(t)
	in := fund(t, d, issuer, alice.Certificate(), quota.Denomination{Value: 50, Count: 1})[0]

	tr, err := NewTransfer(d, in, bob.Certificate())
	if err != nil {
		t.Fatalf("NewTransfer() error: %v", err)
	}
	signed := sealTransfer(t, tr, alice)

	got, err := DecodeTransfer(signed.Body.Bytes(), currency.DecodeQuotaBacked)
	if err != nil {
		t.Fatalf("DecodeTransfer() error: %v", err)
	}
	if got.TxID != tr.TxID || got.Target != tr.Target {
		t.Error("transfer changed across round trip")
	}

	out, err := ApplyTransfer(issuer, signed, currency.Reassign)
	if err != nil {
		t.Fatalf("ApplyTransfer() error: %v", err)
	}
	if out.Body.Owner() != bob.Certificate() || out.Body.CurrencyID() != in.Body.CurrencyID() {
		t.Error("transfer should re-bind the same currency to the target")
	}
}

func TestTransfer_JSON(t *testing.T) {
	d := testDeriver(7)
	issuer, alice, bob := testKey(t), testKey(t), testKey(t)
	in, err := currency.Issue(issuer, d, alice.Certificate(), 40, nil, []byte("gift"))
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	tr, err := NewTransfer(d, in, bob.Certificate())
	if err != nil {
		t.Fatalf("NewTransfer() error: %v", err)
	}
	signed := sealTransfer(t, tr, alice)

	data, err := json.Marshal(signed)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var got envelope.Envelope[*Transfer[*currency.SelfMinted]]
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !bytes.Equal(got.Bytes(), signed.Bytes()) {
		t.Errorf("transfer changed across JSON round trip:\n%s", data)
	}
	if err := got.VerifySignedBy(alice.Certificate()); err != nil {
		t.Errorf("VerifySignedBy() after JSON error: %v", err)
	}
	out, err := ApplyTransfer(issuer, &got, currency.ReassignSelfMinted)
	if err != nil {
		t.Fatalf("ApplyTransfer() after JSON error: %v", err)
	}
	if out.Body.Owner() != bob.Certificate() {
		t.Error("transfer should re-bind the unit to bob")
	}
}

func TestTransfer_Rejects(t *testing.T) {
	d := testDeriver(6)
	issuer, alice, bob := testKey(t), testKey(t), testKey(t)
	in := fund(t, d, issuer, alice.Certificate(), quota.Denomination{Value: 50, Count: 1})[0]
	tr, err := NewTransfer(d, in, bob.Certificate())
	if err != nil {
		t.Fatalf("NewTransfer() error: %v", err)
	}

	tests := []struct {
		name   string
		payer  *crypto.PrivateKey
		issuer *crypto.PrivateKey
		want   error
	}{
		{"payer not owner", bob, issuer, currency.ErrNotOwner},
		{"wrong issuer", alice, bob, currency.ErrNotIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyTransfer(tt.issuer, sealTransfer(t, tr, tt.payer), currency.Reassign)
			if !errors.Is(err, tt.want) {
				t.Errorf("ApplyTransfer() error = %v, want %v", err, tt.want)
			}
		})
	}

	unsigned := envelope.New(envelope.TagTransfer, tr)
	if _, err := ApplyTransfer(issuer, unsigned, currency.Reassign); !errors.Is(err, types.ErrSignatureInvalid) {
		t.Errorf("ApplyTransfer(unsigned) error = %v, want ErrSignatureInvalid", err)
	}
}
