package types

import "errors"

// Error kinds shared by every record type. Package-level errors wrap one of
// these so callers can classify a failure with errors.Is.
var (
	ErrDecode                = errors.New("malformed encoding")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrValueConservation     = errors.New("value conservation violated")
	ErrDuplicateInput        = errors.New("duplicate input")
	ErrMissingOwnerSignature = errors.New("missing owner signature")
	ErrAmountOverflow        = errors.New("amount overflows uint64")
)
