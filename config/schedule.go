package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-quota/pkg/quota"
)

// ParseSchedule parses "value x count" pairs separated by commas, e.g.
// "10x5,50x2,100x1". A bare value means a count of one. The result must be
// a valid issue schedule.
func ParseSchedule(s string) ([]quota.Denomination, error) {
	var out []quota.Denomination
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		valStr, countStr, hasCount := strings.Cut(strings.ToLower(part), "x")
		value, err := strconv.ParseUint(strings.TrimSpace(valStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %d %q: value: %w", i, part, err)
		}
		count := uint64(1)
		if hasCount {
			if count, err = strconv.ParseUint(strings.TrimSpace(countStr), 10, 64); err != nil {
				return nil, fmt.Errorf("entry %d %q: count: %w", i, part, err)
			}
		}
		out = append(out, quota.Denomination{Value: value, Count: count})
	}
	if err := quota.ValidateSchedule(out); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatSchedule is the inverse of ParseSchedule.
func FormatSchedule(schedule []quota.Denomination) string {
	parts := make([]string, len(schedule))
	for i, d := range schedule {
		parts[i] = fmt.Sprintf("%dx%d", d.Value, d.Count)
	}
	return strings.Join(parts, ",")
}
