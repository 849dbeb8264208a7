package spatial

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
	"gonum.org/v1/gonum/floats"
)

// DefaultNeighborCount is the k used for the hotspot distance band.
const DefaultNeighborCount = 8

type indexedPoint struct {
	p orb.Point
	i int
}

func (ip indexedPoint) Point() orb.Point { return ip.p }

// NeighborDistanceBand computes, for every point, the distance to its k-th
// nearest other point, and returns the minimum, mean, and maximum of those
// distances. The mean is the fixed band used by the hotspot statistic.
func NeighborDistanceBand(points []orb.Point, k int) (domain.DistanceBand, error) {
	if k < 1 {
		return domain.DistanceBand{}, &domain.ConfigError{
			Field: "neighbor count",
			Value: strconv.Itoa(k),
			Err:   errors.New("must be at least 1"),
		}
	}
	if len(points) < k+1 {
		return domain.DistanceBand{}, &domain.DataError{
			Stage:  "distance band",
			Detail: fmt.Sprintf("%d points for %d neighbours", len(points), k),
			Err:    domain.ErrInsufficientPoints,
		}
	}

	bound := orb.MultiPoint(points).Bound()
	tree := quadtree.New(bound)
	for i, p := range points {
		if err := tree.Add(indexedPoint{p: p, i: i}); err != nil {
			return domain.DistanceBand{}, fmt.Errorf("index point %d: %w", i, err)
		}
	}

	kth := make([]float64, len(points))
	buf := make([]orb.Pointer, 0, k)
	for i, p := range points {
		self := i
		buf = tree.KNearestMatching(buf, p, k, func(ptr orb.Pointer) bool {
			return ptr.(indexedPoint).i != self
		})
		// KNearestMatching returns the nearest first.
		kth[i] = planar.Distance(p, buf[len(buf)-1].Point())
	}

	return domain.DistanceBand{
		K:   k,
		Min: floats.Min(kth),
		Avg: floats.Sum(kth) / float64(len(kth)),
		Max: floats.Max(kth),
	}, nil
}
