package quota

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-quota/pkg/types"
	"github.com/Klingon-tech/klingnet-quota/pkg/wire"
)

// denominationSize is the encoded size of one (value, count) pair.
const denominationSize = 16

// Denomination is one entry of a schedule: Count tokens of face value Value.
type Denomination struct {
	Value uint64 `json:"value"`
	Count uint64 `json:"count"`
}

// Total returns the sum of Value*Count over a schedule.
func Total(schedule []Denomination) (uint64, error) {
	var total uint64
	for i, d := range schedule {
		v, err := types.MulAmount(d.Value, d.Count)
		if err != nil {
			return 0, fmt.Errorf("denomination %d: %w", i, err)
		}
		if total, err = types.AddAmount(total, v); err != nil {
			return 0, fmt.Errorf("denomination %d: %w", i, err)
		}
	}
	return total, nil
}

// Count returns the number of tokens a schedule mints.
func Count(schedule []Denomination) (uint64, error) {
	var n uint64
	for i, d := range schedule {
		var err error
		if n, err = types.AddAmount(n, d.Count); err != nil {
			return 0, fmt.Errorf("denomination %d: %w", i, err)
		}
	}
	return n, nil
}

// CheckCount returns ErrTooManyTokens if schedule mints more than max
// tokens.
func CheckCount(schedule []Denomination, max uint64) error {
	n, err := Count(schedule)
	if err != nil {
		return err
	}
	if n > max {
		return fmt.Errorf("%d tokens, limit %d: %w", n, max, ErrTooManyTokens)
	}
	return nil
}

// ValidateSchedule checks that a schedule is sorted ascending by value,
// unique by value and has no zero entries. Minting does not call this;
// it is offered to callers that build schedules from untrusted input.
func ValidateSchedule(schedule []Denomination) error {
	for i, d := range schedule {
		if d.Value == 0 {
			return fmt.Errorf("denomination %d: %w", i, ErrZeroValue)
		}
		if d.Count == 0 {
			return fmt.Errorf("denomination %d: %w", i, ErrZeroCount)
		}
		if i > 0 && schedule[i-1].Value >= d.Value {
			return fmt.Errorf("denomination %d: %w", i, ErrScheduleOrder)
		}
	}
	if _, err := Total(schedule); err != nil {
		return err
	}
	return nil
}

// WriteSchedule writes a u32 count followed by the (value, count) pairs.
func WriteSchedule(w *wire.Writer, schedule []Denomination) {
	w.Count(len(schedule))
	for _, d := range schedule {
		w.Uint64(d.Value)
		w.Uint64(d.Count)
	}
}

// ReadSchedule reads a schedule written by WriteSchedule.
func ReadSchedule(r *wire.Reader) ([]Denomination, error) {
	n, err := r.Count(denominationSize)
	if err != nil {
		return nil, err
	}
	out := make([]Denomination, n)
	for i := range out {
		if out[i].Value, err = r.Uint64(); err != nil {
			return nil, err
		}
		if out[i].Count, err = r.Uint64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scheduleFields returns the derivation fields for a schedule:
// value || count for every entry.
func scheduleFields(schedule []Denomination) []byte {
	w := wire.NewWriter(len(schedule) * denominationSize)
	for _, d := range schedule {
		w.Uint64(d.Value)
		w.Uint64(d.Count)
	}
	return w.Bytes()
}
