package types

import (
	"fmt"
	"math"
)

// AddAmount returns a+b, or ErrAmountOverflow if the sum wraps.
func AddAmount(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, a, b)
	}
	return a + b, nil
}

// MulAmount returns a*b, or ErrAmountOverflow if the product wraps.
func MulAmount(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, fmt.Errorf("%w: %d * %d", ErrAmountOverflow, a, b)
	}
	return a * b, nil
}
