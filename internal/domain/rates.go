package domain

import (
	"fmt"
	"strconv"
)

// RateInput names the fields a rate is computed from.
type RateInput struct {
	CountField  string
	LengthField string
	OutputField string
}

// NormalizeRate appends OutputField = count / (span * length) to every
// segment. Every row is checked before any row is written, so a zero-length
// segment leaves the layer untouched.
func NormalizeRate(layer *SegmentLayer, in RateInput, span int) error {
	if span < 1 {
		return &DataError{Stage: "rate", Detail: "span " + strconv.Itoa(span), Err: ErrZeroTimeSpan}
	}

	rates := make([]float64, len(layer.Segments))
	for i, s := range layer.Segments {
		count, ok := s.Derived[in.CountField]
		if !ok {
			return fmt.Errorf("rate %s: segment %d has no %s value", in.OutputField, s.FID, in.CountField)
		}
		length, ok := s.Derived[in.LengthField]
		if !ok {
			return fmt.Errorf("rate %s: segment %d has no %s value", in.OutputField, s.FID, in.LengthField)
		}
		if length <= 0 {
			return &DataError{
				Stage:  "rate",
				Detail: fmt.Sprintf("segment %d has %s=%g", s.FID, in.LengthField, length),
				Err:    ErrZeroLengthSegment,
			}
		}
		rates[i] = count / (float64(span) * length)
	}

	layer.AddField(in.OutputField)
	for i := range layer.Segments {
		layer.Segments[i].Derived[in.OutputField] = rates[i]
	}
	return nil
}
