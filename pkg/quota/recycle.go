package quota

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// RecycleReceipt records tokens taken out of circulation, tallied by
// value in ascending order.
type RecycleReceipt struct {
	RecycleID      types.Hash        `json:"recycle_id"`
	RecycleInfo    []Denomination    `json:"recycle_info"`
	DeliverySystem types.Certificate `json:"delivery_system"`
}

// Recycle verifies every token and tallies them into a receipt. A single
// bad token rejects the whole batch. The receipt id is
// Derive(value_1, count_1, ..., ds, timestamp).
func Recycle(d *derive.Deriver, tokens []*SignedToken, ds types.Certificate) (*RecycleReceipt, error) {
	seen := make(map[types.Hash]struct{}, len(tokens))
	tally := make(map[uint64]uint64)
	for i, e := range tokens {
		if err := VerifyToken(e, ds); err != nil {
			return nil, fmt.Errorf("%w: token %d: %w", ErrRecycleVerify, i, err)
		}
		if _, dup := seen[e.Body.ID]; dup {
			return nil, fmt.Errorf("token %d %s: %w", i, e.Body.ID, types.ErrDuplicateInput)
		}
		seen[e.Body.ID] = struct{}{}
		tally[e.Body.Value]++
	}

	info := make([]Denomination, 0, len(tally))
	for _, v := range slices.Sorted(maps.Keys(tally)) {
		info = append(info, Denomination{Value: v, Count: tally[v]})
	}

	id, err := d.Derive(scheduleFields(info), ds[:], derive.Int64(d.Now()))
	if err != nil {
		return nil, fmt.Errorf("recycle receipt id: %w", err)
	}
	return &RecycleReceipt{RecycleID: id, RecycleInfo: info, DeliverySystem: ds}, nil
}

// Total returns the value recycled.
func (r *RecycleReceipt) Total() (uint64, error) {
	return Total(r.RecycleInfo)
}

// Bytes returns the canonical encoding:
//
//	recycle_id[32] | count:u32 | count x (value:u64 | count:u64) | delivery_system[33]
func (r *RecycleReceipt) Bytes() []byte {
	return encodeSchedule(r.RecycleID, r.RecycleInfo, r.DeliverySystem)
}

// DecodeRecycleReceipt parses a recycle receipt.
func DecodeRecycleReceipt(data []byte) (*RecycleReceipt, error) {
	id, info, ds, err := decodeSchedule(data)
	if err != nil {
		return nil, err
	}
	return &RecycleReceipt{RecycleID: id, RecycleInfo: info, DeliverySystem: ds}, nil
}

// DecodeSignedRecycleReceipt parses an enveloped recycle receipt.
func DecodeSignedRecycleReceipt(data []byte) (*envelope.Envelope[*RecycleReceipt], error) {
	return envelope.Decode(data, envelope.TagQuotaRecycleReceipt, DecodeRecycleReceipt)
}
