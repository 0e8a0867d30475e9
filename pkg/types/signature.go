package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureSize is the length of a serialized Schnorr signature.
const SignatureSize = 64

// Signature is a serialized Schnorr signature.
type Signature [SignatureSize]byte

// String returns the hex-encoded signature.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// MarshalJSON encodes the signature as a hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a hex-encoded signature.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(b) != SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	copy(s[:], b)
	return nil
}
