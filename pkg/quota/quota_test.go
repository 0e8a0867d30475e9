package quota

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

var testSchedule = []Denomination{{10, 5}, {50, 2}, {100, 1}}

func testDeriver(seed byte) *derive.Deriver {
	var s [32]byte
	s[0] = seed
	return derive.New(rand.NewChaCha8(s), derive.FixedClock(1_700_000_000_000))
}

func testKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key
}

// issue mints and seals the test schedule under key.
func issue(t *testing.T, d *derive.Deriver, key *crypto.PrivateKey, schedule []Denomination) []*SignedToken {
	t.Helper()
	req, err := NewIssueRequest(d, schedule, key.Certificate())
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	tokens, err := req.QuotaDistribution(d)
	if err != nil {
		t.Fatalf("QuotaDistribution() error: %v", err)
	}
	signed, err := Seal(tokens, key)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	return signed
}

func sum(tokens []*SignedToken) uint64 {
	var total uint64
	for _, e := range tokens {
		total += e.Body.Value
	}
	return total
}

func TestTotal(t *testing.T) {
	got, err := Total(testSchedule)
	if err != nil {
		t.Fatalf("Total() error: %v", err)
	}
	if got != 250 {
		t.Errorf("Total() = %d, want 250", got)
	}
	if _, err := Total([]Denomination{{1 << 63, 2}}); !errors.Is(err, types.ErrAmountOverflow) {
		t.Errorf("Total(overflow) error = %v, want ErrAmountOverflow", err)
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule []Denomination
		want     error
	}{
		{"valid", testSchedule, nil},
		{"empty", nil, nil},
		{"zero value", []Denomination{{0, 1}}, ErrZeroValue},
		{"zero count", []Denomination{{10, 0}}, ErrZeroCount},
		{"descending", []Denomination{{50, 1}, {10, 1}}, ErrScheduleOrder},
		{"duplicate value", []Denomination{{10, 1}, {10, 2}}, ErrScheduleOrder},
		{"overflow", []Denomination{{1 << 62, 4}}, types.ErrAmountOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateSchedule() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateSchedule() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckCount(t *testing.T) {
	if n, err := Count(testSchedule); err != nil || n != 8 {
		t.Errorf("Count() = %d, %v, want 8", n, err)
	}
	if err := CheckCount(testSchedule, 8); err != nil {
		t.Errorf("CheckCount(8) error: %v", err)
	}
	if err := CheckCount(testSchedule, 7); !errors.Is(err, ErrTooManyTokens) {
		t.Errorf("CheckCount(7) error = %v, want ErrTooManyTokens", err)
	}
	if _, err := Count([]Denomination{{1, math.MaxUint64}, {2, 1}}); !errors.Is(err, types.ErrAmountOverflow) {
		t.Errorf("Count(overflow) error = %v, want ErrAmountOverflow", err)
	}
}

func TestToken_BytesRoundTrip(t *testing.T) {
	key := testKey(t)
	tok := &Token{
		ID:             crypto.Hash([]byte("id")),
		Timestamp:      -5,
		Value:          100,
		DeliverySystem: key.Certificate(),
		TradeHash:      crypto.Hash([]byte("trade")),
	}
	data := tok.Bytes()
	if len(data) != TokenSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(data), TokenSize)
	}
	got, err := DecodeToken(data)
	if err != nil {
		t.Fatalf("DecodeToken() error: %v", err)
	}
	if *got != *tok {
		t.Errorf("DecodeToken() = %+v, want %+v", got, tok)
	}
	if _, err := DecodeToken(data[:TokenSize-1]); !errors.Is(err, types.ErrDecode) {
		t.Errorf("DecodeToken(short) error = %v, want ErrDecode", err)
	}
	if _, err := DecodeToken(append(data, 0)); !errors.Is(err, types.ErrDecode) {
		t.Errorf("DecodeToken(long) error = %v, want ErrDecode", err)
	}
}

func TestIssueRequest_QuotaDistribution(t *testing.T) {
	d := testDeriver(1)
	key := testKey(t)
	req, err := NewIssueRequest(d, testSchedule, key.Certificate())
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

	counts := map[uint64]int{}
	ids := map[types.Hash]bool{}
	trade := crypto.Hash(req.Bytes())
	for _, tok := range tokens {
		counts[tok.Value]++
		ids[tok.ID] = true
		if tok.TradeHash != trade {
			t.Errorf("token %s trade hash = %s, want %s", tok.ID, tok.TradeHash, trade)
		}
		if tok.DeliverySystem != key.Certificate() {
			t.Errorf("token %s delivery system mismatch", tok.ID)
		}
	}
	if counts[10] != 5 || counts[50] != 2 || counts[100] != 1 {
		t.Errorf("value counts = %v, want 10:5 50:2 100:1", counts)
	}
	if len(ids) != 8 {
		t.Errorf("distinct ids = %d, want 8", len(ids))
	}
}

func TestIssueRequest_EmptySchedule(t *testing.T) {
	d := testDeriver(1)
	req, err := NewIssueRequest(d, nil, testKey(t).Certificate())
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	tokens, err := req.QuotaDistribution(d)
	if err != nil {
		t.Fatalf("QuotaDistribution() error: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("minted %d tokens, want 0", len(tokens))
	}
}

func TestIssueRequest_IDDependsOnCount(t *testing.T) {
	ds := testKey(t).Certificate()
	a, err := NewIssueRequest(testDeriver(9), []Denomination{{10, 1}}, ds)
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	b, err := NewIssueRequest(testDeriver(9), []Denomination{{10, 2}}, ds)
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	if a.IssueID == b.IssueID {
		t.Error("issue id should change with the count")
	}
}

func TestIssueRequest_BytesRoundTrip(t *testing.T) {
	req, err := NewIssueRequest(testDeriver(1), testSchedule, testKey(t).Certificate())
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	got, err := DecodeIssueRequest(req.Bytes())
	if err != nil {
		t.Fatalf("DecodeIssueRequest() error: %v", err)
	}
	if !bytes.Equal(got.Bytes(), req.Bytes()) {
		t.Error("issue request changed across round trip")
	}
}

func TestIssueRequest_SignedRoundTrip(t *testing.T) {
	key := testKey(t)
	req, err := NewIssueRequest(testDeriver(1), testSchedule, key.Certificate())
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	e, err := envelope.Seal(envelope.TagIssueQuotaRequest, req, key)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	got, err := DecodeSignedIssueRequest(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeSignedIssueRequest() error: %v", err)
	}
	if err := got.VerifySignedBy(key.Certificate()); err != nil {
		t.Errorf("VerifySignedBy() error: %v", err)
	}
}

func TestConvert_ConservesValue(t *testing.T) {
	d := testDeriver(2)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)

	outputs := []Denomination{{25, 10}}
	req, err := NewConvertRequest(d, tokens, outputs, key.Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	minted, err := req.Convert(d)
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}
	if len(minted) != 10 {
		t.Fatalf("minted %d tokens, want 10", len(minted))
	}
	var total uint64
	trade := crypto.Hash(req.Bytes())
	for _, tok := range minted {
		total += tok.Value
		if tok.TradeHash != trade {
			t.Error("converted token should carry the convert request hash")
		}
	}
	if total != sum(tokens) {
		t.Errorf("output total = %d, want %d", total, sum(tokens))
	}
}

func TestConvert_SumMismatch(t *testing.T) {
	d := testDeriver(3)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)

	for _, outputs := range [][]Denomination{{{249, 1}}, {{251, 1}}} {
		req, err := NewConvertRequest(d, tokens, outputs, key.Certificate())
		if err != nil {
			t.Fatalf("NewConvertRequest() error: %v", err)
		}
		_, err = req.Convert(d)
		if !errors.Is(err, ErrConvertSum) || !errors.Is(err, types.ErrValueConservation) {
			t.Errorf("Convert(%v) error = %v, want ErrConvertSum", outputs, err)
		}
	}
}

func TestConvert_InvalidSignature(t *testing.T) {
	d := testDeriver(4)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)

	// Re-sign one input with a different key.
	if err := tokens[3].AttachHeader(testKey(t)); err != nil {
		t.Fatalf("AttachHeader() error: %v", err)
	}
	req, err := NewConvertRequest(d, tokens, []Denomination{{250, 1}}, key.Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	_, err = req.Convert(d)
	if !errors.Is(err, ErrConvertInvalid) || !errors.Is(err, types.ErrSignatureInvalid) {
		t.Errorf("Convert() error = %v, want ErrConvertInvalid", err)
	}
}

func TestConvert_SignatureCheckedBeforeSum(t *testing.T) {
	d := testDeriver(9)
	key := testKey(t)
	// The first two inputs overflow the sum; the third is forged.
	tokens := issue(t, d, key, []Denomination{{2, 1}, {math.MaxUint64, 1}})
	forged := issue(t, d, key, []Denomination{{5, 1}})[0]
	if err := forged.AttachHeader(testKey(t)); err != nil {
		t.Fatalf("AttachHeader() error: %v", err)
	}
	tokens = append(tokens, forged)

	req, err := NewConvertRequest(d, tokens, []Denomination{{7, 1}}, key.Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	_, err = req.Convert(d)
	if !errors.Is(err, ErrConvertInvalid) {
		t.Errorf("Convert() error = %v, want ErrConvertInvalid", err)
	}
	if errors.Is(err, ErrConvertSum) {
		t.Error("a forged input should be reported before the sum")
	}
}

func TestConvert_ForeignToken(t *testing.T) {
	d := testDeriver(5)
	key, other := testKey(t), testKey(t)
	tokens := issue(t, d, other, []Denomination{{10, 1}})

	req, err := NewConvertRequest(d, tokens, []Denomination{{10, 1}}, key.Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	if _, err := req.Convert(d); !errors.Is(err, ErrForeignQuota) {
		t.Errorf("Convert() error = %v, want ErrForeignQuota", err)
	}
}

func TestConvert_DuplicateInput(t *testing.T) {
	d := testDeriver(6)
	key := testKey(t)
	tokens := issue(t, d, key, []Denomination{{10, 1}})
	tokens = append(tokens, tokens[0])

	req, err := NewConvertRequest(d, tokens, []Denomination{{20, 1}}, key.Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	if _, err := req.Convert(d); !errors.Is(err, types.ErrDuplicateInput) {
		t.Errorf("Convert() error = %v, want ErrDuplicateInput", err)
	}
}

func TestConvert_EmptyRequest(t *testing.T) {
	d := testDeriver(7)
	req, err := NewConvertRequest(d, nil, nil, testKey(t).Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	minted, err := req.Convert(d)
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}
	if len(minted) != 0 {
		t.Errorf("minted %d tokens, want 0", len(minted))
	}
}

func TestConvertRequest_BytesRoundTrip(t *testing.T) {
	d := testDeriver(8)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)
	req, err := NewConvertRequest(d, tokens, []Denomination{{50, 5}}, key.Certificate())
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	got, err := DecodeConvertRequest(req.Bytes())
	if err != nil {
		t.Fatalf("DecodeConvertRequest() error: %v", err)
	}
	if !bytes.Equal(got.Bytes(), req.Bytes()) {
		t.Error("convert request changed across round trip")
	}
	if _, err := got.Convert(d); err != nil {
		t.Errorf("decoded request Convert() error: %v", err)
	}
}

func TestRecycle_Tally(t *testing.T) {
	d := testDeriver(10)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)

	receipt, err := Recycle(d, tokens, key.Certificate())
	if err != nil {
		t.Fatalf("Recycle() error: %v", err)
	}
	want := []Denomination{{10, 5}, {50, 2}, {100, 1}}
	if len(receipt.RecycleInfo) != len(want) {
		t.Fatalf("RecycleInfo = %v, want %v", receipt.RecycleInfo, want)
	}
	for i := range want {
		if receipt.RecycleInfo[i] != want[i] {
			t.Errorf("RecycleInfo[%d] = %v, want %v", i, receipt.RecycleInfo[i], want[i])
		}
	}
	if total, _ := receipt.Total(); total != 250 {
		t.Errorf("Total() = %d, want 250", total)
	}
}

func TestRecycle_OrderIndependent(t *testing.T) {
	d := testDeriver(11)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)

	reversed := make([]*SignedToken, len(tokens))
	for i, e := range tokens {
		reversed[len(tokens)-1-i] = e
	}
	a, err := Recycle(d, tokens, key.Certificate())
	if err != nil {
		t.Fatalf("Recycle() error: %v", err)
	}
	b, err := Recycle(d, reversed, key.Certificate())
	if err != nil {
		t.Fatalf("Recycle(reversed) error: %v", err)
	}
	for i := range a.RecycleInfo {
		if a.RecycleInfo[i] != b.RecycleInfo[i] {
			t.Errorf("tally differs at %d: %v vs %v", i, a.RecycleInfo[i], b.RecycleInfo[i])
		}
	}
}

func TestRecycle_AbortsOnBadToken(t *testing.T) {
	d := testDeriver(12)
	key := testKey(t)
	tokens := issue(t, d, key, testSchedule)
	tokens[len(tokens)-1].Body = &Token{
		ID:             tokens[len(tokens)-1].Body.ID,
		Value:          1000,
		DeliverySystem: key.Certificate(),
	}

	receipt, err := Recycle(d, tokens, key.Certificate())
	if !errors.Is(err, ErrRecycleVerify) || !errors.Is(err, types.ErrSignatureInvalid) {
		t.Errorf("Recycle() error = %v, want ErrRecycleVerify", err)
	}
	if receipt != nil {
		t.Error("Recycle() should return no receipt on failure")
	}
}

func TestRecycle_DuplicateInput(t *testing.T) {
	d := testDeriver(13)
	key := testKey(t)
	tokens := issue(t, d, key, []Denomination{{10, 1}})
	if _, err := Recycle(d, append(tokens, tokens[0]), key.Certificate()); !errors.Is(err, types.ErrDuplicateInput) {
		t.Errorf("Recycle() error = %v, want ErrDuplicateInput", err)
	}
}

func TestRecycle_Empty(t *testing.T) {
	d := testDeriver(14)
	receipt, err := Recycle(d, nil, testKey(t).Certificate())
	if err != nil {
		t.Fatalf("Recycle() error: %v", err)
	}
	if len(receipt.RecycleInfo) != 0 {
		t.Errorf("RecycleInfo = %v, want empty", receipt.RecycleInfo)
	}
}

func TestRecycleReceipt_RoundTrip(t *testing.T) {
	d := testDeriver(15)
	key := testKey(t)
	receipt, err := Recycle(d, issue(t, d, key, testSchedule), key.Certificate())
	if err != nil {
		t.Fatalf("Recycle() error: %v", err)
	}
	e, err := envelope.Seal(envelope.TagQuotaRecycleReceipt, receipt, key)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	got, err := DecodeSignedRecycleReceipt(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeSignedRecycleReceipt() error: %v", err)
	}
	if got.Body.RecycleID != receipt.RecycleID {
		t.Error("recycle id changed across round trip")
	}
	if err := got.VerifySignedBy(key.Certificate()); err != nil {
		t.Errorf("VerifySignedBy() error: %v", err)
	}
}

func TestSignedToken_JSON(t *testing.T) {
	key := testKey(t)
	tokens := issue(t, testDeriver(16), key, []Denomination{{10, 1}})
	data, err := json.Marshal(tokens[0])
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var got SignedToken
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if *got.Body != *tokens[0].Body {
		t.Errorf("body = %+v, want %+v", got.Body, tokens[0].Body)
	}
	if err := got.VerifySignedBy(key.Certificate()); err != nil {
		t.Errorf("VerifySignedBy() after JSON error: %v", err)
	}
}

// jsonRoundTrip marshals e and reads it back into a fresh envelope.
func jsonRoundTrip[B envelope.Body](t *testing.T, e *envelope.Envelope[B]) *envelope.Envelope[B] {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var got envelope.Envelope[B]
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !bytes.Equal(got.Bytes(), e.Bytes()) {
		t.Errorf("envelope changed across JSON round trip:\n%s", data)
	}
	return &got
}

func TestSignedRequests_JSON(t *testing.T) {
	d := testDeriver(17)
	key := testKey(t)
	ds := key.Certificate()
	tokens := issue(t, d, key, testSchedule)

	issueReq, err := NewIssueRequest(d, testSchedule, ds)
	if err != nil {
		t.Fatalf("NewIssueRequest() error: %v", err)
	}
	convertReq, err := NewConvertRequest(d, tokens, []Denomination{{50, 5}}, ds)
	if err != nil {
		t.Fatalf("NewConvertRequest() error: %v", err)
	}
	receipt, err := Recycle(d, tokens, ds)
	if err != nil {
		t.Fatalf("Recycle() error: %v", err)
	}

	t.Run("issue request", func(t *testing.T) {
		e, err := envelope.Seal(envelope.TagIssueQuotaRequest, issueReq, key)
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		got := jsonRoundTrip(t, e)
		if err := got.VerifySignedBy(ds); err != nil {
			t.Errorf("VerifySignedBy() error: %v", err)
		}
		if got.Body.IssueID != issueReq.IssueID || len(got.Body.IssueInfo) != len(testSchedule) {
			t.Errorf("body = %+v, want %+v", got.Body, issueReq)
		}
	})

	t.Run("convert request", func(t *testing.T) {
		e, err := envelope.Seal(envelope.TagConvertQuotaRequest, convertReq, key)
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		got := jsonRoundTrip(t, e)
		if err := got.VerifySignedBy(ds); err != nil {
			t.Errorf("VerifySignedBy() error: %v", err)
		}
		for i, in := range got.Body.Inputs {
			if err := VerifyToken(in, ds); err != nil {
				t.Errorf("input %d: VerifyToken() error: %v", i, err)
			}
		}
		if _, err := got.Body.Convert(d); err != nil {
			t.Errorf("Convert() after JSON error: %v", err)
		}
	})

	t.Run("recycle receipt", func(t *testing.T) {
		e, err := envelope.Seal(envelope.TagQuotaRecycleReceipt, receipt, key)
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		got := jsonRoundTrip(t, e)
		if err := got.VerifySignedBy(ds); err != nil {
			t.Errorf("VerifySignedBy() error: %v", err)
		}
		if got.Body.RecycleID != receipt.RecycleID || len(got.Body.RecycleInfo) != 3 {
			t.Errorf("body = %+v, want %+v", got.Body, receipt)
		}
	})
}

func FuzzConvertRequestDecode(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 32+4+4))
	f.Fuzz(func(t *testing.T, data []byte) {
		// Must not panic.
		DecodeConvertRequest(data)
	})
}

func FuzzIssueRequestDecode(f *testing.F) {
	f.Add([]byte{})
	f.Add(append(make([]byte, 32), 0xFF, 0xFF, 0xFF, 0xFF))
	f.Fuzz(func(t *testing.T, data []byte) {
		DecodeIssueRequest(data)
	})
}
