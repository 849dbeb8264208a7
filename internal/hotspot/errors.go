package hotspot

import "errors"

var (
	// ErrNonFiniteValue is returned when the analysis variable holds NaN or Inf.
	ErrNonFiniteValue = errors.New("analysis value is not finite")
	// ErrMissingValue is returned when a segment lacks the analysis variable.
	ErrMissingValue = errors.New("analysis value is missing")
)
