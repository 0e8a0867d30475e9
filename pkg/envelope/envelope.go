// Package envelope wraps a record body in a signed header.
//
// Wire layout:
//
//	tag:u16 | body_len:u32 | body | signer[33] | signature[64]
//
// The signature covers everything before it. Because the body is length
// prefixed, envelopes are self-delimiting and can be concatenated in
// sequences.
package envelope

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/crypto"
	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// Overhead is the number of bytes an envelope adds around its body.
const Overhead = 2 + 4 + types.CertificateSize + types.SignatureSize

// Envelope errors.
var (
	ErrUnsigned = fmt.Errorf("envelope has no header: %w", types.ErrSignatureInvalid)
	ErrBadTag   = fmt.Errorf("unexpected envelope tag: %w", types.ErrDecode)
)

// Body is a record that can be wrapped.
type Body interface {
	// Bytes returns the canonical encoding of the body.
	Bytes() []byte
}

// Decoder parses a body from its canonical encoding.
type Decoder[B Body] func([]byte) (B, error)

// Header is the signature block of an envelope.
type Header struct {
	Signer    types.Certificate `json:"signer"`
	Signature types.Signature   `json:"signature"`
}

// Envelope is a tagged body plus an optional header. An envelope without
// a header encodes with a zero header and never verifies.
type Envelope[B Body] struct {
	Tag    Tag     `json:"type"`
	Body   B       `json:"body"`
	Header *Header `json:"header,omitempty"`
}

// New wraps body under tag with no header.
func New[B Body](tag Tag, body B) *Envelope[B] {
	return &Envelope[B]{Tag: tag, Body: body}
}

// Seal wraps body and attaches a header signed by key.
func Seal[B Body](tag Tag, body B, key crypto.Signer) (*Envelope[B], error) {
	e := New(tag, body)
	if err := e.AttachHeader(key); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Envelope[B]) signingBytes(body []byte, signer types.Certificate) []byte {
	w := wire.NewWriter(Overhead + len(body))
	w.Uint16(uint16(e.Tag))
	w.Count(len(body))
	w.Raw(body)
	w.Raw(signer[:])
	return w.Bytes()
}

// AttachHeader signs the envelope with key, replacing any existing header.
func (e *Envelope[B]) AttachHeader(key crypto.Signer) error {
	signer := key.Certificate()
	sig, err := key.Sign(e.signingBytes(e.Body.Bytes(), signer))
	if err != nil {
		return fmt.Errorf("attach header: %w", err)
	}
	e.Header = &Header{Signer: signer, Signature: sig}
	return nil
}

// VerifyHeader checks the header signature over the tag and body.
func (e *Envelope[B]) VerifyHeader() error {
	if e.Header == nil {
		return ErrUnsigned
	}
	msg := e.signingBytes(e.Body.Bytes(), e.Header.Signer)
	if !crypto.Verify(e.Header.Signer, msg, e.Header.Signature) {
		return fmt.Errorf("%s header by %s: %w", e.Tag, e.Header.Signer, types.ErrSignatureInvalid)
	}
	return nil
}

// VerifySignedBy checks the header and that it was produced by cert.
func (e *Envelope[B]) VerifySignedBy(cert types.Certificate) error {
	if err := e.VerifyHeader(); err != nil {
		return err
	}
	if e.Header.Signer != cert {
		return fmt.Errorf("%s signed by %s, want %s: %w", e.Tag, e.Header.Signer, cert, types.ErrSignatureInvalid)
	}
	return nil
}

// Signer returns the header's certificate, or the zero certificate if the
// envelope is unsigned.
func (e *Envelope[B]) Signer() types.Certificate {
	if e.Header == nil {
		return types.Certificate{}
	}
	return e.Header.Signer
}

// Bytes returns the wire encoding of the envelope.
func (e *Envelope[B]) Bytes() []byte {
	var h Header
	if e.Header != nil {
		h = *e.Header
	}
	msg := e.signingBytes(e.Body.Bytes(), h.Signer)
	return append(msg, h.Signature[:]...)
}

// Decode parses a complete envelope. Trailing bytes are rejected.
func Decode[B Body](data []byte, tag Tag, decode Decoder[B]) (*Envelope[B], error) {
	r := wire.NewReader(data)
	e, err := Read(r, tag, decode)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return e, nil
}

// Read parses one envelope from r, leaving any following bytes unread.
func Read[B Body](r *wire.Reader, tag Tag, decode Decoder[B]) (*Envelope[B], error) {
	got, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if Tag(got) != tag {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrBadTag, Tag(got), tag)
	}
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	raw, err := r.Next(int(n))
	if err != nil {
		return nil, err
	}
	body, err := decode(raw)
	if err != nil {
		if !errors.Is(err, types.ErrDecode) {
			err = fmt.Errorf("%w: %v", types.ErrDecode, err)
		}
		return nil, fmt.Errorf("%s body: %w", tag, err)
	}
	signer, err := r.Certificate()
	if err != nil {
		return nil, err
	}
	sig, err := r.Signature()
	if err != nil {
		return nil, err
	}
	return &Envelope[B]{
		Tag:    tag,
		Body:   body,
		Header: &Header{Signer: signer, Signature: sig},
	}, nil
}

// ReadSeq reads a u32 count followed by that many envelopes.
func ReadSeq[B Body](r *wire.Reader, tag Tag, decode Decoder[B]) ([]*Envelope[B], error) {
	n, err := r.Count(Overhead)
	if err != nil {
		return nil, err
	}
	out := make([]*Envelope[B], 0, n)
	for i := 0; i < n; i++ {
		e, err := Read(r, tag, decode)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteSeq writes a u32 count followed by each envelope.
func WriteSeq[B Body](w *wire.Writer, seq []*Envelope[B]) {
	w.Count(len(seq))
	for _, e := range seq {
		w.Raw(e.Bytes())
	}
}
