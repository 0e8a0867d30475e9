// Package derive computes record identifiers.
//
// Every identifier is Hash(field_1 || ... || field_n || salt) where the
// fields are the little-endian serialized inputs chosen by the record type
// (in a fixed order, usually including a millisecond timestamp) and salt is
// 32 fresh bytes from a cryptographically secure source. Randomness and
// time are injected so tests can pin both.
package derive

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// SaltSize is the number of random bytes appended to every derivation.
const SaltSize = 32

// Clock supplies millisecond timestamps.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowMillis returns the current Unix time in milliseconds.
func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// FixedClock always returns the same timestamp.
type FixedClock int64

// NowMillis returns the fixed timestamp.
func (c FixedClock) NowMillis() int64 { return int64(c) }

// Deriver derives identifiers from a random source and a clock.
// A Deriver is safe for concurrent use only if its random source is.
type Deriver struct {
	rand  io.Reader
	clock Clock
}

// New creates a Deriver. A nil src uses crypto/rand; a nil clock uses the
// wall clock.
func New(src io.Reader, clock Clock) *Deriver {
	d := Default()
	if src != nil {
		d.rand = src
	}
	if clock != nil {
		d.clock = clock
	}
	return d
}

// Default returns a Deriver backed by crypto/rand and the wall clock.
func Default() *Deriver {
	return &Deriver{rand: rand.Reader, clock: SystemClock{}}
}

// Now returns the current timestamp in milliseconds.
func (d *Deriver) Now() int64 {
	return d.clock.NowMillis()
}

// Salt reads a fresh salt from the random source.
func (d *Deriver) Salt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	if _, err := io.ReadFull(d.rand, salt[:]); err != nil {
		return salt, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}

// Derive hashes parts in order followed by a fresh salt.
func (d *Deriver) Derive(parts ...[]byte) (types.Hash, error) {
	salt, err := d.Salt()
	if err != nil {
		return types.Hash{}, err
	}
	h := crypto.NewHasher()
	for _, p := range parts {
		h.Write(p)
	}
	h.Write(salt[:])
	return h.Sum(), nil
}

// Uint64 encodes v little-endian for use as a derivation field.
func Uint64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// Int64 encodes v little-endian for use as a derivation field.
func Int64(v int64) []byte {
	return Uint64(uint64(v))
}
