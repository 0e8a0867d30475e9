package quota

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// IssueRequest asks a delivery system to mint a schedule of tokens.
type IssueRequest struct {
	IssueID        types.Hash        `json:"issue_id"`
	IssueInfo      []Denomination    `json:"issue_info"`
	DeliverySystem types.Certificate `json:"delivery_system"`
}

// NewIssueRequest builds a request with
// id = Derive(value_1, count_1, ..., value_n, count_n, ds, timestamp).
func NewIssueRequest(d *derive.Deriver, info []Denomination, ds types.Certificate) (*IssueRequest, error) {
	id, err := d.Derive(scheduleFields(info), ds[:], derive.Int64(d.Now()))
	if err != nil {
		return nil, fmt.Errorf("issue request id: %w", err)
	}
	return &IssueRequest{
		IssueID:        id,
		IssueInfo:      append([]Denomination(nil), info...),
		DeliverySystem: ds,
	}, nil
}

// QuotaDistribution mints every token the request describes. All tokens
// carry trade_hash = Hash(request bytes).
func (r *IssueRequest) QuotaDistribution(d *derive.Deriver) ([]*Token, error) {
	return Mint(d, r.IssueInfo, r.DeliverySystem, crypto.Hash(r.Bytes()))
}

// Bytes returns the canonical encoding:
//
//	issue_id[32] | count:u32 | count x (value:u64 | count:u64) | delivery_system[33]
func (r *IssueRequest) Bytes() []byte {
	return encodeSchedule(r.IssueID, r.IssueInfo, r.DeliverySystem)
}

// DecodeIssueRequest parses an issue request.
func DecodeIssueRequest(data []byte) (*IssueRequest, error) {
	id, info, ds, err := decodeSchedule(data)
	if err != nil {
		return nil, err
	}
	return &IssueRequest{IssueID: id, IssueInfo: info, DeliverySystem: ds}, nil
}

// DecodeSignedIssueRequest parses an enveloped issue request.
func DecodeSignedIssueRequest(data []byte) (*envelope.Envelope[*IssueRequest], error) {
	return envelope.Decode(data, envelope.TagIssueQuotaRequest, DecodeIssueRequest)
}

func encodeSchedule(id types.Hash, schedule []Denomination, ds types.Certificate) []byte {
	w := wire.NewWriter(types.HashSize + 4 + len(schedule)*denominationSize + types.CertificateSize)
	w.Raw(id[:])
	WriteSchedule(w, schedule)
	w.Raw(ds[:])
	return w.Bytes()
}

func decodeSchedule(data []byte) (types.Hash, []Denomination, types.Certificate, error) {
	var ds types.Certificate
	r := wire.NewReader(data)
	id, err := r.Hash()
	if err != nil {
		return id, nil, ds, err
	}
	schedule, err := ReadSchedule(r)
	if err != nil {
		return id, nil, ds, err
	}
	if ds, err = r.Certificate(); err != nil {
		return id, nil, ds, err
	}
	if err := r.Done(); err != nil {
		return id, nil, ds, err
	}
	return id, schedule, ds, nil
}
