package hotspot

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Result is the Gi* outcome for one segment.
type Result struct {
	Z         float64
	P         float64
	Bin       int
	Neighbors int
}

// Bin maps a z-score to a confidence bin: ±3 for 99%, ±2 for 95%, ±1 for
// 90%, else 0.
func Bin(z float64) int {
	a := math.Abs(z)
	var b int
	switch {
	case a > 2.58:
		b = 3
	case a > 1.96:
		b = 2
	case a > 1.65:
		b = 1
	}
	if z < 0 {
		return -b
	}
	return b
}

// GiStar computes Gi* for every value over the graph. values[i] belongs to
// graph node i. When the variable has no variance or every segment neighbours
// every other, the statistic is undefined and each result is z=0, p=1, bin 0.
// A segment whose band holds only itself gets the same non-significant result.
func GiStar(g *Graph, values []float64) ([]Result, error) {
	n := len(values)
	if n != len(g.Neighbors) {
		return nil, fmt.Errorf("gi*: %d values for %d graph nodes", n, len(g.Neighbors))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &domain.DataError{
				Stage:  "hotspot",
				Detail: fmt.Sprintf("value %d is %g", i, v),
				Err:    ErrNonFiniteValue,
			}
		}
	}

	results := make([]Result, n)
	if n == 0 {
		return results, nil
	}

	mean, sd := stat.PopMeanStdDev(values, nil)
	constant := floats.Min(values) == floats.Max(values)
	nf := float64(n)

	for i, nbrs := range g.Neighbors {
		w := float64(len(nbrs))
		results[i] = Result{P: 1, Neighbors: len(nbrs)}

		spread := (nf*w - w*w) / (nf - 1)
		if n < 2 || len(nbrs) < 2 || constant || sd == 0 || spread <= 0 {
			continue
		}

		var sum float64
		for _, j := range nbrs {
			sum += values[j]
		}
		z := (sum - mean*w) / (sd * math.Sqrt(spread))
		results[i].Z = z
		results[i].P = 2 * distuv.UnitNormal.Survival(math.Abs(z))
		results[i].Bin = Bin(z)
	}
	return results, nil
}

// Stats summarises one Analyze call.
type Stats struct {
	HotSpots      int
	ColdSpots     int
	MeanNeighbors float64
}

// Analyze runs Gi* on field and appends the z-score, p-value, bin, and
// neighbour count fields to layer. Nothing is written when it fails.
func Analyze(layer *domain.SegmentLayer, g *Graph, field string, out domain.HotspotFields, logger *slog.Logger) (Stats, error) {
	values, ok := layer.Column(field)
	if !ok {
		return Stats{}, &domain.DataError{Stage: "hotspot", Detail: "segments without " + field, Err: ErrMissingValue}
	}

	results, err := GiStar(g, values)
	if err != nil {
		return Stats{}, fmt.Errorf("analyze %s: %w", field, err)
	}

	for _, name := range []string{out.ZScore, out.PValue, out.Bin, out.Neighbours} {
		layer.AddField(name)
	}

	var st Stats
	neighbours := make([]float64, len(results))
	for i, r := range results {
		d := layer.Segments[i].Derived
		d[out.ZScore] = r.Z
		d[out.PValue] = r.P
		d[out.Bin] = float64(r.Bin)
		d[out.Neighbours] = float64(r.Neighbors)
		neighbours[i] = float64(r.Neighbors)
		switch {
		case r.Bin > 0:
			st.HotSpots++
		case r.Bin < 0:
			st.ColdSpots++
		}
	}
	if len(neighbours) > 0 {
		st.MeanNeighbors = stat.Mean(neighbours, nil)
	}

	logger.Info("hotspot analysis complete",
		"field", field,
		"segments", len(results),
		"band", g.Band,
		"hot_spots", st.HotSpots,
		"cold_spots", st.ColdSpots,
		"mean_neighbors", st.MeanNeighbors,
	)
	return st, nil
}
