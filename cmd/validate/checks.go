package main

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/couchcryptid/crash-hotspot/internal/hotspot"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// withNumericProperties lifts numeric GeoJSON properties into Derived so the
// checks see the same shape for both store formats.
func withNumericProperties(layer *domain.SegmentLayer) *domain.SegmentLayer {
	fields := map[string]bool{}
	for i := range layer.Segments {
		s := &layer.Segments[i]
		if s.Derived == nil {
			s.Derived = map[string]float64{}
		}
		for k, v := range s.Properties {
			if f, ok := v.(float64); ok {
				s.Derived[k] = f
				fields[k] = true
			}
		}
	}
	for k := range fields {
		layer.AddField(k)
	}
	slices.Sort(layer.Fields)
	return layer
}

// validateMergeFields checks the crash count on every segment and, when any
// segment has a fatality sum, that every segment has one.
func validateMergeFields(layer *domain.SegmentLayer) *phase {
	p := &phase{name: "Merge fields present"}
	withFatal := layer.HasField(domain.FatalitySumField)
	for _, s := range layer.Segments {
		n, ok := s.Get(domain.CrashCountField)
		switch {
		case !ok:
			p.errorf("segment %d: missing %s", s.FID, domain.CrashCountField)
		case n < 0 || n != math.Trunc(n):
			p.errorf("segment %d: %s=%g is not a count", s.FID, domain.CrashCountField, n)
		}
		if !withFatal {
			continue
		}
		f, ok := s.Get(domain.FatalitySumField)
		switch {
		case !ok:
			p.errorf("segment %d: missing %s", s.FID, domain.FatalitySumField)
		case f < 0 || f > n:
			p.errorf("segment %d: %s=%g outside [0, %g]", s.FID, domain.FatalitySumField, f, n)
		}
	}
	return p
}

// validateRates checks every Avg_ rate field is finite and non-negative.
func validateRates(layer *domain.SegmentLayer) *phase {
	p := &phase{name: "Rates finite"}
	var rates []string
	for _, f := range layer.Fields {
		if strings.HasPrefix(f, "Avg_crash_") || strings.HasPrefix(f, "Avg_fata_") {
			rates = append(rates, f)
		}
	}
	if len(rates) == 0 {
		p.errorf("no rate fields on layer")
		return p
	}
	for _, s := range layer.Segments {
		for _, f := range rates {
			v, ok := s.Get(f)
			switch {
			case !ok:
				p.errorf("segment %d: missing %s", s.FID, f)
			case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
				p.errorf("segment %d: %s=%g", s.FID, f, v)
			}
		}
	}
	return p
}

// validateHotspots checks the Gi* fields for one analysed variable.
func validateHotspots(layer *domain.SegmentLayer, fields domain.HotspotFields) *phase {
	p := &phase{name: "Hotspot fields valid (" + fields.ZScore + ")"}
	for _, s := range layer.Segments {
		z, zok := s.Get(fields.ZScore)
		pv, pok := s.Get(fields.PValue)
		bin, bok := s.Get(fields.Bin)
		nn, nok := s.Get(fields.Neighbours)
		if !zok || !pok || !bok || !nok {
			p.errorf("segment %d: missing hotspot fields", s.FID)
			continue
		}
		if math.IsNaN(z) || math.IsInf(z, 0) {
			p.errorf("segment %d: %s=%g", s.FID, fields.ZScore, z)
			continue
		}
		if pv < 0 || pv > 1 || math.IsNaN(pv) {
			p.errorf("segment %d: %s=%g outside [0, 1]", s.FID, fields.PValue, pv)
		}
		if bin != math.Trunc(bin) || bin < -3 || bin > 3 {
			p.errorf("segment %d: %s=%g not in -3..3", s.FID, fields.Bin, bin)
		} else if want := hotspot.Bin(z); int(bin) != want {
			p.errorf("segment %d: %s=%g but z=%.4f gives %d", s.FID, fields.Bin, bin, z, want)
		}
		if nn < 1 {
			p.errorf("segment %d: %s=%g, the segment itself is always a neighbour", s.FID, fields.Neighbours, nn)
		}
	}
	return p
}

// validateSummary cross-checks the run summary against the layer.
func validateSummary(layer *domain.SegmentLayer, summary domain.Summary) *phase {
	p := &phase{name: "Summary consistent"}
	if summary.TotalSegments != len(layer.Segments) {
		p.errorf("total_segments=%d, layer has %d", summary.TotalSegments, len(layer.Segments))
	}

	var hot, cold, matched int
	for _, s := range layer.Segments {
		if n, _ := s.Get(domain.CrashCountField); n > 0 {
			matched++
		}
		switch b, _ := s.Get(domain.CrashHotspotFields().Bin); {
		case b > 0:
			hot++
		case b < 0:
			cold++
		}
	}
	if summary.HotSpots != hot {
		p.errorf("hot_spots=%d, layer has %d", summary.HotSpots, hot)
	}
	if summary.ColdSpots != cold {
		p.errorf("cold_spots=%d, layer has %d", summary.ColdSpots, cold)
	}
	if summary.SegmentsWithMatches != matched {
		p.errorf("segments_with_crashes=%d, layer has %d", summary.SegmentsWithMatches, matched)
	}
	if summary.TimeSpan < 1 {
		p.errorf("time_span=%d, rates need at least 1", summary.TimeSpan)
	}
	return p
}
