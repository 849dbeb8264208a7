package hotspot

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// Graph is a fixed distance band neighbour graph. Neighbors[i] lists the
// indices within Band of segment i in ascending order, including i itself.
type Graph struct {
	Band      float64
	Neighbors [][]int
}

type centroid struct {
	p orb.Point
	i int
}

func (c centroid) Point() orb.Point { return c.p }

// Centroids returns the length-weighted centroid of every segment.
func Centroids(layer *domain.SegmentLayer) []orb.Point {
	out := make([]orb.Point, len(layer.Segments))
	for i, s := range layer.Segments {
		out[i], _ = planar.CentroidArea(s.Geometry)
	}
	return out
}

// BuildGraph links every pair of centroids no more than band apart.
func BuildGraph(centroids []orb.Point, band float64) (*Graph, error) {
	if band < 0 || math.IsNaN(band) || math.IsInf(band, 0) {
		return nil, &domain.DataError{
			Stage:  "neighbour graph",
			Detail: fmt.Sprintf("band %g", band),
			Err:    domain.ErrInvalidDistance,
		}
	}

	g := &Graph{Band: band, Neighbors: make([][]int, len(centroids))}
	if len(centroids) == 0 {
		return g, nil
	}

	tree := quadtree.New(orb.MultiPoint(centroids).Bound())
	for i, c := range centroids {
		if err := tree.Add(centroid{p: c, i: i}); err != nil {
			return nil, fmt.Errorf("index centroid %d: %w", i, err)
		}
	}

	var buf []orb.Pointer
	for i, c := range centroids {
		query := orb.Bound{Min: orb.Point{c[0] - band, c[1] - band}, Max: orb.Point{c[0] + band, c[1] + band}}
		buf = tree.InBound(buf, query)

		nbrs := make([]int, 0, len(buf))
		for _, ptr := range buf {
			n := ptr.(centroid)
			if n.i == i || planar.Distance(c, n.p) <= band {
				nbrs = append(nbrs, n.i)
			}
		}
		slices.Sort(nbrs)
		g.Neighbors[i] = nbrs
	}
	return g, nil
}
