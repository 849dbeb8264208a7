package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGranularity is returned for a time granularity other than year, month, or week.
	ErrInvalidGranularity = errors.New("invalid time granularity")
	// ErrInvalidUnit is returned for an unrecognised linear unit.
	ErrInvalidUnit = errors.New("invalid linear unit")
	// ErrInvalidDistance is returned for a negative, non-finite, or unparsable distance.
	ErrInvalidDistance = errors.New("invalid distance")
	// ErrInvalidField is returned when a configured field name is empty or not present on the layer.
	ErrInvalidField = errors.New("invalid field name")
	// ErrInvalidMergeRule is returned for a malformed merge specification.
	ErrInvalidMergeRule = errors.New("invalid merge rule")

	// ErrEmptyDataset is returned when a layer has no features to analyse.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrZeroTimeSpan is returned when the observation window rounds to zero units
	// and the zero-span policy is set to error.
	ErrZeroTimeSpan = errors.New("time span is zero")
	// ErrZeroLengthSegment is returned when a segment has no length, which would make its rate undefined.
	ErrZeroLengthSegment = errors.New("zero-length segment")
	// ErrInsufficientPoints is returned when the point layer has k or fewer points.
	ErrInsufficientPoints = errors.New("insufficient points for neighbour count")

	// ErrOutputExists is returned when the output layer exists and overwriting is disabled.
	ErrOutputExists = errors.New("output layer already exists")
)

// ConfigError reports an invalid configuration value. It is raised before any
// heavy computation starts.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DataError reports input data that violates a statistical precondition of a
// pipeline stage.
type DataError struct {
	Stage  string
	Detail string
	Err    error
}

func (e *DataError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Stage, e.Err, e.Detail)
}

func (e *DataError) Unwrap() error { return e.Err }

// ErrorClass groups failures for the front-end.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassConfig
	ClassData
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassData:
		return "data"
	default:
		return "internal"
	}
}

// ExitCode is the process exit status the front-end uses for the class.
func (c ErrorClass) ExitCode() int {
	switch c {
	case ClassConfig:
		return 2
	case ClassData:
		return 3
	default:
		return 1
	}
}

// Classify reports which class err belongs to. Sentinel errors that were not
// wrapped in a carrier type are classified by their sentinel.
func Classify(err error) ErrorClass {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ClassConfig
	}
	var dataErr *DataError
	if errors.As(err, &dataErr) {
		return ClassData
	}
	switch {
	case errors.Is(err, ErrInvalidGranularity),
		errors.Is(err, ErrInvalidUnit),
		errors.Is(err, ErrInvalidDistance),
		errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrInvalidMergeRule),
		errors.Is(err, ErrOutputExists):
		return ClassConfig
	case errors.Is(err, ErrEmptyDataset),
		errors.Is(err, ErrZeroTimeSpan),
		errors.Is(err, ErrZeroLengthSegment),
		errors.Is(err, ErrInsufficientPoints):
		return ClassData
	}
	return ClassInternal
}
