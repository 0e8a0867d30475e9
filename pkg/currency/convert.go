package currency

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// ConvertRequest asks the issuer to re-denominate quota-backed currency.
// The wallet signs the request envelope; that signer must own every input.
type ConvertRequest struct {
	Inputs  []*SignedQuotaBacked `json:"inputs"`
	Outputs []quota.Denomination `json:"outputs"`
}

// Bytes returns the canonical encoding:
//
//	count:u32 | count x envelope(currency) | count:u32 | count x (value:u64 | count:u64)
func (r *ConvertRequest) Bytes() []byte {
	w := wire.NewWriter(4 + len(r.Inputs)*(envelope.Overhead+QuotaBackedSize))
	envelope.WriteSeq(w, r.Inputs)
	quota.WriteSchedule(w, r.Outputs)
	return w.Bytes()
}

// DecodeConvertRequest parses a currency convert request.
func DecodeConvertRequest(data []byte) (*ConvertRequest, error) {
	r := wire.NewReader(data)
	inputs, err := envelope.ReadSeq(r, envelope.TagDigitalCurrency, DecodeQuotaBacked)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := quota.ReadSchedule(r)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &ConvertRequest{Inputs: inputs, Outputs: outputs}, nil
}

// DecodeSignedConvertRequest parses an enveloped currency convert request.
func DecodeSignedConvertRequest(data []byte) (*envelope.Envelope[*ConvertRequest], error) {
	return envelope.Decode(data, envelope.TagCurrencyConvertRequest, DecodeConvertRequest)
}

// Exchange redeems a signed convert request: the inputs are consumed and
// fresh currency for the output schedule is bound to the requester. New
// tokens carry trade_hash = Hash(request bytes).
func Exchange(key crypto.Signer, d *derive.Deriver, signed *envelope.Envelope[*ConvertRequest]) ([]*SignedQuotaBacked, error) {
	if err := signed.VerifyHeader(); err != nil {
		return nil, fmt.Errorf("convert request: %w", err)
	}
	requester := signed.Signer()
	issuer := key.Certificate()
	req := signed.Body

	seen := make(map[types.Hash]struct{}, len(req.Inputs))
	var in uint64
	for i, e := range req.Inputs {
		if err := VerifyIssuedBy(e, issuer); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if e.Body.Owner() != requester {
			return nil, fmt.Errorf("input %d owned by %s: %w", i, e.Body.Owner(), ErrNotOwner)
		}
		id := e.Body.CurrencyID()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("input %d currency %s: %w", i, id, types.ErrDuplicateInput)
		}
		seen[id] = struct{}{}

		var err error
		if in, err = types.AddAmount(in, e.Body.Amount()); err != nil {
			return nil, fmt.Errorf("inputs: %w", err)
		}
	}

	out, err := quota.Total(req.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	if in != out {
		return nil, fmt.Errorf("inputs %d, outputs %d: %w", in, out, types.ErrValueConservation)
	}

	tokens, err := quota.Mint(d, req.Outputs, issuer, crypto.Hash(req.Bytes()))
	if err != nil {
		return nil, err
	}
	sealed, err := quota.Seal(tokens, key)
	if err != nil {
		return nil, err
	}
	result := make([]*SignedQuotaBacked, 0, len(sealed))
	for _, t := range sealed {
		c, err := Bind(key, t, requester)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}
