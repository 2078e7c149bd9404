package feed

import (
	"math"
	"strconv"
	"strings"
)

// Normalize converts a raw upstream price into a finite value or nil.
// strconv.ParseFloat accepts the "Infinity"/"-Infinity"/"NaN" sentinels the
// feed uses for halted instruments, so the finiteness check below covers
// both malformed input and the sentinel strings. Never errors.
func Normalize(raw RawPrice) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func classify(current, previous *float64) Direction {
	if current == nil || previous == nil {
		return DirectionNeutral
	}
	switch {
	case *current > *previous:
		return DirectionUp
	case *current < *previous:
		return DirectionDown
	default:
		return DirectionNeutral
	}
}
