package retention

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// DefaultOffsets are the day offsets measured when none are configured.
var DefaultOffsets = []int{1, 7, 30}

// Offsets is a validated list of retention day offsets. It implements
// pflag.Value so commands can accept --offsets 1,7,30.
type Offsets []int

var _ pflag.Value = (*Offsets)(nil)

// ParseOffsets parses a comma-separated offset list and validates it.
func ParseOffsets(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	offsets := make([]int, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q: must be an integer", part)
		}
		offsets = append(offsets, n)
	}

	if err := ValidateOffsets(offsets); err != nil {
		return nil, err
	}
	return offsets, nil
}

// ValidateOffsets checks that offsets are non-empty, positive, and
// strictly increasing.
func ValidateOffsets(offsets []int) error {
	if len(offsets) == 0 {
		return fmt.Errorf("at least one retention offset is required")
	}
	for i, offset := range offsets {
		if offset <= 0 {
			return fmt.Errorf("offset %d must be positive", offset)
		}
		if i > 0 && offset <= offsets[i-1] {
			return fmt.Errorf("offsets must be strictly increasing: %d follows %d", offset, offsets[i-1])
		}
	}
	return nil
}

// ColumnName returns the aggregate column name for a day offset.
func ColumnName(offset int) string {
	return fmt.Sprintf("day_%d_retention", offset)
}

// String implements pflag.Value.
func (o *Offsets) String() string {
	parts := make([]string, len(*o))
	for i, offset := range *o {
		parts[i] = strconv.Itoa(offset)
	}
	return strings.Join(parts, ",")
}

// Set implements pflag.Value.
func (o *Offsets) Set(s string) error {
	offsets, err := ParseOffsets(s)
	if err != nil {
		return err
	}
	*o = offsets
	return nil
}

// Type implements pflag.Value.
func (o *Offsets) Type() string {
	return "offsets"
}
