package quota

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/types"
)

// Quota errors.
var (
	ErrConvertInvalid = fmt.Errorf("quota convert input rejected: %w", types.ErrSignatureInvalid)
	ErrConvertSum     = fmt.Errorf("quota convert sum mismatch: %w", types.ErrValueConservation)
	ErrRecycleVerify  = fmt.Errorf("quota recycle input rejected: %w", types.ErrSignatureInvalid)
	ErrForeignQuota   = errors.New("quota issued by another delivery system")
	ErrZeroValue      = errors.New("denomination value is zero")
	ErrZeroCount      = errors.New("denomination count is zero")
	ErrScheduleOrder  = errors.New("denominations must be strictly ascending by value")
	ErrTooManyTokens  = errors.New("schedule exceeds the token limit")
)
