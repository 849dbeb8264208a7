package spatial

import (
	"log/slog"
	"math"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultXYTolerance is the join's intersect tolerance in coordinate units.
const DefaultXYTolerance = 0.001

// JoinOptions configures Aggregate.
type JoinOptions struct {
	Spec domain.MergeSpec
	// XYTolerance is the largest point-to-segment distance treated as an
	// intersection, in coordinate units.
	XYTolerance float64
	// LengthField receives each segment's length in LengthUnit.
	// Empty units default to US miles and meters respectively.
	LengthField    string
	LengthUnit     domain.LengthUnit
	CoordinateUnit domain.LengthUnit
}

// JoinResult is the joined segment layer plus counters.
type JoinResult struct {
	Layer               *domain.SegmentLayer
	Matched             int
	SegmentsWithMatches int
	// NullSums counts sum values that had no contributing points and were
	// written as 0.
	NullSums int
}

// Aggregate joins points onto a fresh copy of roads, one row per segment.
// Each point is assigned to at most one segment: the nearest within
// XYTolerance, with ties going to the lowest FID. Count rules count the
// assigned points and sum rules add their source values. A sum with no
// contributing values is written as 0.
func Aggregate(roads *domain.SegmentLayer, points *domain.PointLayer, opts JoinOptions, logger *slog.Logger) (JoinResult, error) {
	if err := opts.Spec.Validate(points); err != nil {
		return JoinResult{}, err
	}
	if err := checkTolerance("xy tolerance", opts.XYTolerance); err != nil {
		return JoinResult{}, err
	}
	if opts.LengthField == "" {
		return JoinResult{}, &domain.ConfigError{Field: "length field", Err: domain.ErrInvalidField}
	}

	coordUnit, lengthUnit := opts.CoordinateUnit, opts.LengthUnit
	if coordUnit == "" {
		coordUnit = domain.Meters
	}
	if lengthUnit == "" {
		lengthUnit = domain.Miles
	}

	out := roads.Clone(JoinedLayerName)
	out.AddField(opts.LengthField)
	for i := range out.Segments {
		s := &out.Segments[i]
		s.Derived[opts.LengthField] = coordUnit.Convert(planar.Length(s.Geometry), lengthUnit)
	}

	assigned := make([][]int, len(out.Segments))
	res := JoinResult{Layer: out}
	index := newEdgeIndex(out.Segments)
	for pi, o := range points.Observations {
		seg, ok := nearestSegment(index, o.Point, opts.XYTolerance)
		if !ok {
			continue
		}
		assigned[seg] = append(assigned[seg], pi)
		res.Matched++
	}

	for _, rule := range opts.Spec {
		out.AddField(rule.Output)
	}
	for si := range out.Segments {
		s := &out.Segments[si]
		if len(assigned[si]) > 0 {
			res.SegmentsWithMatches++
		}
		for _, rule := range opts.Spec {
			v, null := merge(rule, assigned[si], points)
			if null {
				res.NullSums++
			}
			s.Derived[rule.Output] = v
		}
	}

	logger.Info("crash points joined to road segments",
		"layer", out.Name,
		"segments", len(out.Segments),
		"points", len(points.Observations),
		"matched", res.Matched,
		"segments_with_matches", res.SegmentsWithMatches,
		"null_sums_zeroed", res.NullSums,
	)
	return res, nil
}

// nearestSegment returns the index of the segment closest to p within tol.
func nearestSegment(index *edgeIndex, p orb.Point, tol float64) (int, bool) {
	best, bestDist := -1, math.Inf(1)
	var bestFID int64
	for _, e := range index.near(p, tol) {
		d := planar.DistanceFromSegment(e.a, e.b, p)
		if d > tol {
			continue
		}
		if d < bestDist || (d == bestDist && e.fid < bestFID) {
			best, bestDist, bestFID = e.seg, d, e.fid
		}
	}
	return best, best >= 0
}

// merge applies one rule to the points assigned to a segment. null reports a
// sum with no contributing values, returned as 0.
func merge(rule domain.MergeRule, assigned []int, points *domain.PointLayer) (v float64, null bool) {
	switch rule.Kind {
	case domain.MergeCount:
		return float64(len(assigned)), false
	case domain.MergeSum:
		var (
			sum float64
			n   int
		)
		for _, pi := range assigned {
			if x, ok := points.Observations[pi].Value(rule.Source); ok && !math.IsNaN(x) {
				sum += x
				n++
			}
		}
		return sum, n == 0
	}
	// Validate rejects any other kind.
	return 0, false
}
