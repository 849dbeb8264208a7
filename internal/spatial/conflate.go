package spatial

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SnapOptions holds the conflation tolerances in coordinate units. The edge
// and vertex tolerances are usually equal.
type SnapOptions struct {
	EdgeTolerance   float64
	VertexTolerance float64
}

func (o SnapOptions) validate() error {
	if err := checkTolerance("edge tolerance", o.EdgeTolerance); err != nil {
		return err
	}
	return checkTolerance("vertex tolerance", o.VertexTolerance)
}

func checkTolerance(field string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return &domain.ConfigError{Field: field, Value: fmt.Sprint(v), Err: domain.ErrInvalidDistance}
	}
	return nil
}

// SnapResult is the conflated copy of the point layer plus counters.
type SnapResult struct {
	Layer           *domain.PointLayer
	Snapped         int
	MaxDisplacement float64
}

// snapCandidate is a location on the network a point could move to.
type snapCandidate struct {
	at     orb.Point
	dist   float64
	vertex bool
	fid    int64
	part   int
	pos    int
}

// better orders candidates: closest first, then vertices before edge points,
// then lowest segment FID, then lowest part and vertex position.
func (c snapCandidate) better(o snapCandidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	if c.vertex != o.vertex {
		return c.vertex
	}
	if c.fid != o.fid {
		return c.fid < o.fid
	}
	if c.part != o.part {
		return c.part < o.part
	}
	return c.pos < o.pos
}

// Conflate snaps every point of a copy of points onto the nearest edge or
// vertex of roads within tolerance. Points with nothing in range keep their
// location. The input layer is never modified.
func Conflate(points *domain.PointLayer, roads *domain.SegmentLayer, opts SnapOptions, logger *slog.Logger) (SnapResult, error) {
	if err := opts.validate(); err != nil {
		return SnapResult{}, err
	}

	out := points.Clone(ConflatedLayerName)
	index := newEdgeIndex(roads.Segments)
	radius := math.Max(opts.EdgeTolerance, opts.VertexTolerance)

	res := SnapResult{Layer: out}
	for i := range out.Observations {
		o := &out.Observations[i]
		best, ok := nearestCandidate(index, o.Point, opts, radius)
		if !ok {
			continue
		}
		if best.dist > res.MaxDisplacement {
			res.MaxDisplacement = best.dist
		}
		o.Point = best.at
		res.Snapped++
	}

	logger.Info("crash points snapped to road network",
		"layer", out.Name,
		"points", len(out.Observations),
		"snapped", res.Snapped,
		"unsnapped", len(out.Observations)-res.Snapped,
		"edge_tolerance", opts.EdgeTolerance,
		"vertex_tolerance", opts.VertexTolerance,
	)
	return res, nil
}

func nearestCandidate(index *edgeIndex, p orb.Point, opts SnapOptions, radius float64) (snapCandidate, bool) {
	var (
		best  snapCandidate
		found bool
	)
	consider := func(c snapCandidate) {
		if !found || c.better(best) {
			best, found = c, true
		}
	}

	for _, e := range index.near(p, radius) {
		q := project(e, p)
		if d := planar.Distance(p, q); d <= opts.EdgeTolerance {
			consider(snapCandidate{at: q, dist: d, fid: e.fid, part: e.part, pos: e.pos})
		}
		if d := planar.Distance(p, e.a); d <= opts.VertexTolerance {
			consider(snapCandidate{at: e.a, dist: d, vertex: true, fid: e.fid, part: e.part, pos: e.pos})
		}
		if d := planar.Distance(p, e.b); d <= opts.VertexTolerance {
			consider(snapCandidate{at: e.b, dist: d, vertex: true, fid: e.fid, part: e.part, pos: e.pos + 1})
		}
	}
	return best, found
}
