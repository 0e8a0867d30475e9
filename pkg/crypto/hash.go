// Package crypto provides the hash and signature primitives every ledger
// record is bound with.
package crypto

import (
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// Hasher is an incremental BLAKE3-256 hasher. Fields are fed with Write in
// a fixed order and the digest is read once with Sum.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher returns an empty hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Write feeds data into the hash. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the digest.
func (h *Hasher) Sum() types.Hash {
	var out types.Hash
	copy(out[:], h.h.Sum(nil))
	return out
}
