package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Granularity is the calendar unit rates are expressed in.
type Granularity string

const (
	Year  Granularity = "year"
	Month Granularity = "month"
	Week  Granularity = "week"
)

// unitDays is the fixed length of each granularity in days.
var unitDays = map[Granularity]float64{
	Year:  365,
	Month: 30,
	Week:  7,
}

// ParseGranularity resolves a granularity token case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := unitDays[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
	return g, nil
}

// Days returns the fixed unit length in days.
func (g Granularity) Days() float64 {
	return unitDays[g]
}

// Suffix is the two-letter tag used in rate field names (yr, mo, wk).
func (g Granularity) Suffix() string {
	switch g {
	case Month:
		return "mo"
	case Week:
		return "wk"
	default:
		return "yr"
	}
}

// TimeSpan returns the number of whole granularity units between the earliest
// and latest timestamp. The quotient is rounded half-to-even, so a single
// distinct timestamp (or any window under half a unit) yields 0.
func TimeSpan(timestamps []time.Time, g Granularity) (int, error) {
	days, ok := unitDays[g]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
	}
	if len(timestamps) == 0 {
		return 0, &DataError{Stage: "time span", Detail: "no timestamps", Err: ErrEmptyDataset}
	}

	lo, hi := timestamps[0], timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.Before(lo) {
			lo = ts
		}
		if ts.After(hi) {
			hi = ts
		}
	}

	elapsedDays := hi.Sub(lo).Hours() / 24
	return int(math.RoundToEven(elapsedDays / days)), nil
}

// ZeroSpanPolicy decides what happens when TimeSpan returns 0.
type ZeroSpanPolicy string

const (
	// ClampZeroSpan treats a zero span as one unit so rates stay defined.
	ClampZeroSpan ZeroSpanPolicy = "clamp"
	// RejectZeroSpan fails the run with ErrZeroTimeSpan.
	RejectZeroSpan ZeroSpanPolicy = "error"
)

// ParseZeroSpanPolicy resolves a policy token; empty means clamp.
func ParseZeroSpanPolicy(s string) (ZeroSpanPolicy, error) {
	switch ZeroSpanPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClampZeroSpan:
		return ClampZeroSpan, nil
	case RejectZeroSpan:
		return RejectZeroSpan, nil
	}
	return "", fmt.Errorf("unknown zero span policy %q", s)
}

// Apply enforces the policy on a computed span. clamped reports whether a zero
// span was raised to 1.
func (p ZeroSpanPolicy) Apply(span int) (effective int, clamped bool, err error) {
	if span >= 1 {
		return span, false, nil
	}
	if p == RejectZeroSpan {
		return 0, false, &DataError{
			Stage:  "time span",
			Detail: "all observations fall within half a time unit",
			Err:    ErrZeroTimeSpan,
		}
	}
	return 1, true, nil
}
