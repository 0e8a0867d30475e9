// Package quota implements the delivery system's token lifecycle: issuing
// a schedule of fixed-denomination tokens, converting tokens into a new
// schedule of equal total and recycling tokens out of circulation.
package quota

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/derive"
	"github.com/Klingon-tech/klingnet-quota/pkg/envelope"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// TokenSize is the encoded size of a Token.
const TokenSize = types.HashSize + 8 + 8 + types.CertificateSize + types.HashSize

// Token is a unit of value with a fixed face value, minted by a delivery
// system. A token is immutable once created.
type Token struct {
	ID             types.Hash        `json:"id"`
	Timestamp      int64             `json:"timestamp"`
	Value          uint64            `json:"value"`
	DeliverySystem types.Certificate `json:"delivery_system"`
	TradeHash      types.Hash        `json:"trade_hash"`
}

// SignedToken is a token wrapped in its issuer's envelope.
type SignedToken = envelope.Envelope[*Token]

// Bytes returns the canonical encoding:
//
//	id[32] | timestamp:i64 | value:u64 | delivery_system[33] | trade_hash[32]
func (t *Token) Bytes() []byte {
	w := wire.NewWriter(TokenSize)
	w.Raw(t.ID[:])
	w.Int64(t.Timestamp)
	w.Uint64(t.Value)
	w.Raw(t.DeliverySystem[:])
	w.Raw(t.TradeHash[:])
	return w.Bytes()
}

// DecodeToken parses a token. The input must be exactly TokenSize bytes.
func DecodeToken(data []byte) (*Token, error) {
	r := wire.NewReader(data)
	var (
		t   Token
		err error
	)
	if t.ID, err = r.Hash(); err != nil {
		return nil, err
	}
	if t.Timestamp, err = r.Int64(); err != nil {
		return nil, err
	}
	if t.Value, err = r.Uint64(); err != nil {
		return nil, err
	}
	if t.DeliverySystem, err = r.Certificate(); err != nil {
		return nil, err
	}
	if t.TradeHash, err = r.Hash(); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeSignedToken parses an enveloped token.
func DecodeSignedToken(data []byte) (*SignedToken, error) {
	return envelope.Decode(data, envelope.TagQuotaControlField, DecodeToken)
}

// Seal wraps each token in an envelope signed by key.
func Seal(tokens []*Token, key crypto.Signer) ([]*SignedToken, error) {
	out := make([]*SignedToken, 0, len(tokens))
	for i, t := range tokens {
		e, err := envelope.Seal(envelope.TagQuotaControlField, t, key)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Mint creates tokens for a schedule. Each (value, count) pair reads the
// clock once; every token gets id = Derive(timestamp, value, ds, tradeHash).
// Any failure discards the whole batch.
func Mint(d *derive.Deriver, schedule []Denomination, ds types.Certificate, tradeHash types.Hash) ([]*Token, error) {
	var tokens []*Token
	for _, den := range schedule {
		ts := d.Now()
		for i := uint64(0); i < den.Count; i++ {
			id, err := d.Derive(derive.Int64(ts), derive.Uint64(den.Value), ds[:], tradeHash[:])
			if err != nil {
				return nil, fmt.Errorf("mint %d-value token: %w", den.Value, err)
			}
			tokens = append(tokens, &Token{
				ID:             id,
				Timestamp:      ts,
				Value:          den.Value,
				DeliverySystem: ds,
				TradeHash:      tradeHash,
			})
		}
	}
	return tokens, nil
}
