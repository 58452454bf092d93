package notify

import (
	"fmt"
	"sort"
)

// DefaultOffsets are checked when no offsets are configured.
var DefaultOffsets = []int{0, 1, 7, 30}

// DayOffsetPolicy is the immutable, ascending set of day-offsets checked on
// every run.
type DayOffsetPolicy struct {
	offsets []int
}

// NewDayOffsetPolicy sorts and de-duplicates offsets. Negative offsets are
// rejected.
func NewDayOffsetPolicy(offsets []int) (DayOffsetPolicy, error) {
	seen := make(map[int]struct{}, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, d := range offsets {
		if d < 0 {
			return DayOffsetPolicy{}, fmt.Errorf("notify: negative day offset %d", d)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return DayOffsetPolicy{offsets: out}, nil
}

// Offsets returns a copy of the offsets in ascending order.
func (p DayOffsetPolicy) Offsets() []int {
	return append([]int(nil), p.offsets...)
}

// Max returns the largest offset, or 0 for an empty policy.
func (p DayOffsetPolicy) Max() int {
	if len(p.offsets) == 0 {
		return 0
	}
	return p.offsets[len(p.offsets)-1]
}

func (p DayOffsetPolicy) Len() int { return len(p.offsets) }
