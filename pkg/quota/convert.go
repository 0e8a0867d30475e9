package quota

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// ConvertRequest exchanges signed tokens for a new schedule of equal total.
type ConvertRequest struct {
	ConvertID      types.Hash        `json:"convert_id"`
	Inputs         []*SignedToken    `json:"inputs"`
	Outputs        []Denomination    `json:"outputs"`
	DeliverySystem types.Certificate `json:"delivery_system"`
}

// NewConvertRequest builds a request with
// id = Derive(input envelopes, output pairs, ds, timestamp).
func NewConvertRequest(d *derive.Deriver, inputs []*SignedToken, outputs []Denomination, ds types.Certificate) (*ConvertRequest, error) {
	w := wire.NewWriter(0)
	for _, in := range inputs {
		w.Raw(in.Bytes())
	}
	id, err := d.Derive(w.Bytes(), scheduleFields(outputs), ds[:], derive.Int64(d.Now()))
	if err != nil {
		return nil, fmt.Errorf("convert request id: %w", err)
	}
	return &ConvertRequest{
		ConvertID:      id,
		Inputs:         append([]*SignedToken(nil), inputs...),
		Outputs:        append([]Denomination(nil), outputs...),
		DeliverySystem: ds,
	}, nil
}

// Convert verifies the inputs and mints the output schedule.
//
// Checks, in order: every input envelope verifies and was signed by the
// request's delivery system, no token id appears twice, and the input
// values sum to exactly the output total. New tokens carry
// trade_hash = Hash(request bytes).
func (r *ConvertRequest) Convert(d *derive.Deriver) ([]*Token, error) {
	seen := make(map[types.Hash]struct{}, len(r.Inputs))
	for i, e := range r.Inputs {
		if err := VerifyToken(e, r.DeliverySystem); err != nil {
			return nil, fmt.Errorf("%w: input %d: %w", ErrConvertInvalid, i, err)
		}
		if _, dup := seen[e.Body.ID]; dup {
			return nil, fmt.Errorf("input %d token %s: %w", i, e.Body.ID, types.ErrDuplicateInput)
		}
		seen[e.Body.ID] = struct{}{}
	}

	var in uint64
	for _, e := range r.Inputs {
		var err error
		if in, err = types.AddAmount(in, e.Body.Value); err != nil {
			return nil, fmt.Errorf("%w: inputs: %w", ErrConvertSum, err)
		}
	}

	out, err := Total(r.Outputs)
	if err != nil {
		return nil, fmt.Errorf("%w: outputs: %w", ErrConvertSum, err)
	}
	if in != out {
		return nil, fmt.Errorf("%w: inputs %d, outputs %d", ErrConvertSum, in, out)
	}
	return Mint(d, r.Outputs, r.DeliverySystem, crypto.Hash(r.Bytes()))
}

// VerifyToken checks that e carries a token signed by its own delivery
// system, and that this is ds.
func VerifyToken(e *SignedToken, ds types.Certificate) error {
	if e == nil || e.Body == nil {
		return fmt.Errorf("empty token envelope: %w", types.ErrSignatureInvalid)
	}
	if err := e.VerifySignedBy(e.Body.DeliverySystem); err != nil {
		return err
	}
	if e.Body.DeliverySystem != ds {
		return fmt.Errorf("token %s from %s: %w", e.Body.ID, e.Body.DeliverySystem, ErrForeignQuota)
	}
	return nil
}

// Bytes returns the canonical encoding:
//
//	convert_id[32] | count:u32 | count x envelope(token) |
//	count:u32 | count x (value:u64 | count:u64) | delivery_system[33]
func (r *ConvertRequest) Bytes() []byte {
	w := wire.NewWriter(types.HashSize + len(r.Inputs)*(envelope.Overhead+TokenSize))
	w.Raw(r.ConvertID[:])
	envelope.WriteSeq(w, r.Inputs)
	WriteSchedule(w, r.Outputs)
	w.Raw(r.DeliverySystem[:])
	return w.Bytes()
}

// DecodeConvertRequest parses a convert request.
func DecodeConvertRequest(data []byte) (*ConvertRequest, error) {
	r := wire.NewReader(data)
	var (
		req ConvertRequest
		err error
	)
	if req.ConvertID, err = r.Hash(); err != nil {
		return nil, err
	}
	if req.Inputs, err = envelope.ReadSeq(r, envelope.TagQuotaControlField, DecodeToken); err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	if req.Outputs, err = ReadSchedule(r); err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	if req.DeliverySystem, err = r.Certificate(); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeSignedConvertRequest parses an enveloped convert request.
func DecodeSignedConvertRequest(data []byte) (*envelope.Envelope[*ConvertRequest], error) {
	return envelope.Decode(data, envelope.TagConvertQuotaRequest, DecodeConvertRequest)
}
