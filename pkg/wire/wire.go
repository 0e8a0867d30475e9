// Package wire implements the little-endian binary layout shared by all
// ledger records.
//
// Writers append fixed-width integers and fixed-length arrays. Readers
// consume the same layout and refuse to read past the end of the buffer:
// every short read, oversized count and trailing byte is reported as
// types.ErrDecode.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Writer accumulates an encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with capacity for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Uint16 appends v.
func (w *Writer) Uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// Uint32 appends v.
func (w *Writer) Uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

// Uint64 appends v.
func (w *Writer) Uint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// Int64 appends v in two's complement.
func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Count appends a sequence length as u32.
func (w *Writer) Count(n int) { w.Uint32(uint32(n)) }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader consumes an encoding.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset returns the number of bytes read so far.
func (r *Reader) Offset() int { return r.off }

// Next consumes and returns the next n bytes. The returned slice aliases
// the reader's buffer.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", types.ErrDecode, n, r.off, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Uint16 reads a little-endian u16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian u32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian u64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int64 reads a little-endian two's complement i64.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Hash reads a 32-byte digest.
func (r *Reader) Hash() (types.Hash, error) {
	var h types.Hash
	b, err := r.Next(types.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// Certificate reads and validates a fixed-length certificate.
func (r *Reader) Certificate() (types.Certificate, error) {
	b, err := r.Next(types.CertificateSize)
	if err != nil {
		return types.Certificate{}, err
	}
	return types.CertificateFromBytes(b)
}

// Signature reads a 64-byte signature.
func (r *Reader) Signature() (types.Signature, error) {
	var s types.Signature
	b, err := r.Next(types.SignatureSize)
	if err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

// Count reads a u32 sequence length and checks that count elements of at
// least minSize bytes each can still fit in the buffer. This bounds any
// allocation sized from the count.
func (r *Reader) Count(minSize int) (int, error) {
	n, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	if minSize > 0 && uint64(n)*uint64(minSize) > uint64(r.Remaining()) {
		return 0, fmt.Errorf("%w: count %d of %d-byte elements exceeds %d remaining bytes", types.ErrDecode, n, minSize, r.Remaining())
	}
	return int(n), nil
}

// Done reports an error if any bytes remain unread.
func (r *Reader) Done() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", types.ErrDecode, r.Remaining())
	}
	return nil
}
