package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// CertificateSize is the encoded length of a certificate: a compressed
// secp256k1 public key.
const CertificateSize = 33

// Certificate identifies an issuer (delivery system) or an owner wallet.
type Certificate [CertificateSize]byte

// CertificateFromBytes parses a fixed-length encoded certificate. The bytes
// must be a valid compressed point on the curve.
func CertificateFromBytes(b []byte) (Certificate, error) {
	if len(b) != CertificateSize {
		return Certificate{}, fmt.Errorf("%w: certificate must be %d bytes, got %d", ErrDecode, CertificateSize, len(b))
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return Certificate{}, fmt.Errorf("%w: certificate: %v", ErrDecode, err)
	}
	var c Certificate
	copy(c[:], b)
	return c, nil
}

// IsZero returns true if the certificate is unset.
func (c Certificate) IsZero() bool {
	return c == Certificate{}
}

// String returns the hex-encoded certificate.
func (c Certificate) String() string {
	return hex.EncodeToString(c[:])
}

// Bytes returns a copy of the encoded certificate.
func (c Certificate) Bytes() []byte {
	b := make([]byte, CertificateSize)
	copy(b, c[:])
	return b
}

// MarshalJSON encodes the certificate as a hex string.
func (c Certificate) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes and validates a hex-encoded certificate.
func (c *Certificate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid certificate hex: %w", err)
	}
	cert, err := CertificateFromBytes(b)
	if err != nil {
		return err
	}
	*c = cert
	return nil
}
