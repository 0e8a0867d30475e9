package envelope

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies the record type carried by an envelope.
type Tag uint16

// Record tags.
const (
	TagQuotaControlField Tag = iota + 1
	TagIssueQuotaRequest
	TagConvertQuotaRequest
	TagQuotaRecycleReceipt
	TagDigitalCurrency
	TagCurrencyConvertRequest
	TagTransaction
	TagTransfer
)

var tagNames = map[Tag]string{
	TagQuotaControlField:      "QuotaControlField",
	TagIssueQuotaRequest:      "IssueQuotaRequest",
	TagConvertQuotaRequest:    "ConvertQuotaRequest",
	TagQuotaRecycleReceipt:    "QuotaRecycleReceipt",
	TagDigitalCurrency:        "DigitalCurrency",
	TagCurrencyConvertRequest: "CurrencyConvertRequest",
	TagTransaction:            "Transaction",
	TagTransfer:               "Transfer",
}

// String returns the tag name.
func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", uint16(t))
}

// MarshalText encodes the tag by name.
func (t Tag) MarshalText() ([]byte, error) {
	if _, ok := tagNames[t]; !ok {
		return nil, fmt.Errorf("unknown tag %d", uint16(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tag name.
func (t *Tag) UnmarshalText(text []byte) error {
	for tag, name := range tagNames {
		if name == string(text) {
			*t = tag
			return nil
		}
	}
	return fmt.Errorf("unknown tag %q", text)
}

// PeekTag returns the tag of the envelope at the start of data without
// decoding it.
func PeekTag(data []byte) (Tag, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: %d bytes", ErrBadTag, len(data))
	}
	t := Tag(binary.LittleEndian.Uint16(data))
	if _, ok := tagNames[t]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrBadTag, t)
	}
	return t, nil
}
