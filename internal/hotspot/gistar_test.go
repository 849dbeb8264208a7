package hotspot

import (
	"log/slog"
	"math"
	"testing"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBin(t *testing.T) {
	tests := []struct {
		z    float64
		want int
	}{
		{0, 0},
		{1.65, 0},
		{1.66, 1},
		{-1.7, -1},
		{1.96, 1},
		{2.0, 2},
		{-2.5, -2},
		{2.58, 2},
		{2.59, 3},
		{-10, -3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bin(tt.z), "z=%v", tt.z)
	}
}

// gridLayer builds an n by n grid of short segments one unit apart, with
// centroids on integer coordinates.
func gridLayer(n int, rate func(x, y int) float64) *domain.SegmentLayer {
	layer := &domain.SegmentLayer{Name: "Crash_hotspots", Fields: []string{"Avg_crash_yr"}}
	for y := range n {
		for x := range n {
			fx, fy := float64(x), float64(y)
			layer.Segments = append(layer.Segments, domain.Segment{
				FID:      int64(len(layer.Segments) + 1),
				Geometry: orb.MultiLineString{{{fx - 0.25, fy}, {fx + 0.25, fy}}},
				Derived:  map[string]float64{"Avg_crash_yr": rate(x, y)},
			})
		}
	}
	return layer
}

func TestAnalyze_PlantedHotSpot(t *testing.T) {
	layer := gridLayer(10, func(x, y int) float64 {
		if x == 5 && y == 5 {
			return 10
		}
		return 1
	})
	g, err := BuildGraph(Centroids(layer), 1.5)
	require.NoError(t, err)

	st, err := Analyze(layer, g, "Avg_crash_yr", domain.CrashHotspotFields(), slog.Default())
	require.NoError(t, err)

	centre := layer.Segments[5*10+5]
	z, _ := centre.Get("GiZScore")
	p, _ := centre.Get("GiPValue")
	bin, _ := centre.Get("Gi_Bin")
	nn, _ := centre.Get("NNeighbors")

	assert.Greater(t, z, 2.58)
	assert.InDelta(t, 3.18, z, 0.01)
	assert.Less(t, p, 0.01)
	assert.Equal(t, 3.0, bin)
	assert.Equal(t, 9.0, nn)

	// The 3x3 block around the planted value shares it; nothing else is significant.
	assert.Equal(t, 9, st.HotSpots)
	assert.Zero(t, st.ColdSpots)

	corner := layer.Segments[0]
	cornerBin, _ := corner.Get("Gi_Bin")
	cornerNN, _ := corner.Get("NNeighbors")
	assert.Zero(t, cornerBin)
	assert.Equal(t, 4.0, cornerNN)

	assert.Equal(t, []string{"Avg_crash_yr", "GiZScore", "GiPValue", "Gi_Bin", "NNeighbors"}, layer.Fields)
}

func TestGiStar_AllZeroRatesIsolatedSegments(t *testing.T) {
	centroids := make([]orb.Point, 10)
	for i := range centroids {
		centroids[i] = orb.Point{float64(i) * 100, 0}
	}
	g, err := BuildGraph(centroids, 1)
	require.NoError(t, err)

	results, err := GiStar(g, make([]float64, 10))
	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, math.IsNaN(r.Z) || math.IsInf(r.Z, 0))
		assert.Equal(t, Result{Z: 0, P: 1, Bin: 0, Neighbors: 1}, r)
	}
}

func TestGiStar_SelfOnlyNeighbourhood(t *testing.T) {
	// 20 segments in a chain at rate 1 plus one isolated segment at rate 10.
	// Without neighbours the isolated segment would score z = (x - mean) / S,
	// about 4.47.
	n := 21
	g := &Graph{Neighbors: make([][]int, n)}
	values := make([]float64, n)
	for i := range 20 {
		nbrs := []int{i}
		if i > 0 {
			nbrs = append([]int{i - 1}, nbrs...)
		}
		if i < 19 {
			nbrs = append(nbrs, i+1)
		}
		g.Neighbors[i] = nbrs
		values[i] = 1
	}
	g.Neighbors[20] = []int{20}
	values[20] = 10

	results, err := GiStar(g, values)
	require.NoError(t, err)

	assert.Equal(t, Result{Z: 0, P: 1, Bin: 0, Neighbors: 1}, results[20])
	for i, r := range results[:20] {
		assert.NotZero(t, r.Z, "segment %d", i)
		assert.Less(t, r.Z, 0.0, "segment %d sits below the mean", i)
	}
}

func TestGiStar_EveryoneNeighboursEveryone(t *testing.T) {
	g := &Graph{Neighbors: [][]int{{0, 1, 2}, {0, 1, 2}, {0, 1, 2}}}

	results, err := GiStar(g, []float64{1, 5, 9})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, Result{Z: 0, P: 1, Bin: 0, Neighbors: 3}, r)
	}
}

func TestGiStar_Deterministic(t *testing.T) {
	layer := gridLayer(8, func(x, y int) float64 { return float64((x*7+y*13)%5) / 3 })
	g, err := BuildGraph(Centroids(layer), 2.2)
	require.NoError(t, err)
	values, _ := layer.Column("Avg_crash_yr")

	first, err := GiStar(g, values)
	require.NoError(t, err)
	second, err := GiStar(g, values)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGiStar_Errors(t *testing.T) {
	g := &Graph{Neighbors: [][]int{{0}, {1}}}

	_, err := GiStar(g, []float64{1})
	require.Error(t, err)

	_, err = GiStar(g, []float64{1, math.Inf(1)})
	require.ErrorIs(t, err, ErrNonFiniteValue)
	assert.Equal(t, domain.ClassData, domain.Classify(err))
}

func TestAnalyze_MissingField(t *testing.T) {
	layer := gridLayer(2, func(int, int) float64 { return 1 })
	delete(layer.Segments[3].Derived, "Avg_crash_yr")
	g, err := BuildGraph(Centroids(layer), 1)
	require.NoError(t, err)

	_, err = Analyze(layer, g, "Avg_crash_yr", domain.CrashHotspotFields(), slog.Default())
	require.ErrorIs(t, err, ErrMissingValue)
	assert.False(t, layer.HasField("GiZScore"))
}
