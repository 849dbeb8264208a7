package spatial

import (
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// edge is one straight piece of a segment part. A part with a single vertex
// becomes a degenerate edge with a == b.
type edge struct {
	seg  int // index into the layer's Segments
	fid  int64
	part int
	pos  int // index of vertex a within the part
	a, b orb.Point
	mid  orb.Point
}

// Point implements orb.Pointer so edges can live in the quadtree.
func (e *edge) Point() orb.Point { return e.mid }

// edgeIndex finds edges near a point. Edges are keyed by their midpoints, so
// a query of radius r is widened by the longest half-edge to stay exact.
type edgeIndex struct {
	tree    *quadtree.Quadtree
	edges   []*edge
	maxHalf float64
	buf     []orb.Pointer
}

func newEdgeIndex(segments []domain.Segment) *edgeIndex {
	x := &edgeIndex{}
	for si, s := range segments {
		for pi, ls := range s.Geometry {
			if len(ls) == 1 {
				x.add(&edge{seg: si, fid: s.FID, part: pi, a: ls[0], b: ls[0]})
				continue
			}
			for vi := 0; vi+1 < len(ls); vi++ {
				x.add(&edge{seg: si, fid: s.FID, part: pi, pos: vi, a: ls[vi], b: ls[vi+1]})
			}
		}
	}
	if len(x.edges) == 0 {
		return x
	}

	bound := orb.Bound{Min: x.edges[0].mid, Max: x.edges[0].mid}
	for _, e := range x.edges[1:] {
		bound = bound.Extend(e.mid)
	}
	x.tree = quadtree.New(bound)
	for _, e := range x.edges {
		// Every midpoint lies inside the bound built from them.
		_ = x.tree.Add(e)
	}
	return x
}

func (x *edgeIndex) add(e *edge) {
	e.mid = orb.Point{(e.a[0] + e.b[0]) / 2, (e.a[1] + e.b[1]) / 2}
	if half := planar.Distance(e.a, e.b) / 2; half > x.maxHalf {
		x.maxHalf = half
	}
	x.edges = append(x.edges, e)
}

// near returns every edge that may have a point within radius of p. The
// result is a superset; callers check the exact distance.
func (x *edgeIndex) near(p orb.Point, radius float64) []*edge {
	if x.tree == nil {
		return nil
	}
	r := radius + x.maxHalf
	b := orb.Bound{Min: orb.Point{p[0] - r, p[1] - r}, Max: orb.Point{p[0] + r, p[1] + r}}
	x.buf = x.tree.InBound(x.buf, b)

	out := make([]*edge, len(x.buf))
	for i, ptr := range x.buf {
		out[i] = ptr.(*edge)
	}
	return out
}

// project returns the point on edge e closest to p.
func project(e *edge, p orb.Point) orb.Point {
	dx, dy := e.b[0]-e.a[0], e.b[1]-e.a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return e.a
	}
	t := ((p[0]-e.a[0])*dx + (p[1]-e.a[1])*dy) / lenSq
	switch {
	case t <= 0:
		return e.a
	case t >= 1:
		return e.b
	}
	return orb.Point{e.a[0] + t*dx, e.a[1] + t*dy}
}
