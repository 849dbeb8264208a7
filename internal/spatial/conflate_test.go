package spatial

import (
	"log/slog"
	"testing"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func road(fid int64, pts ...orb.Point) domain.Segment {
	return domain.Segment{FID: fid, Geometry: orb.MultiLineString{orb.LineString(pts)}}
}

func roadLayer(segments ...domain.Segment) *domain.SegmentLayer {
	return &domain.SegmentLayer{Name: "roads", Segments: segments}
}

func pointLayer(pts ...orb.Point) *domain.PointLayer {
	layer := &domain.PointLayer{Name: "crashes"}
	for i, p := range pts {
		layer.Observations = append(layer.Observations, domain.Observation{FID: int64(i + 1), Point: p})
	}
	return layer
}

func equalTolerance(d float64) SnapOptions {
	return SnapOptions{EdgeTolerance: d, VertexTolerance: d}
}

func TestConflate_SnapsWithinTolerance(t *testing.T) {
	roads := roadLayer(road(1, orb.Point{0, 0}, orb.Point{10, 0}))
	points := pointLayer(orb.Point{5, 0.5}, orb.Point{5, 3})

	res, err := Conflate(points, roads, equalTolerance(1), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, ConflatedLayerName, res.Layer.Name)
	assert.Equal(t, 1, res.Snapped)
	assert.InDelta(t, 0.5, res.MaxDisplacement, 1e-12)
	assert.Equal(t, orb.Point{5, 0}, res.Layer.Observations[0].Point)
	assert.Equal(t, orb.Point{5, 3}, res.Layer.Observations[1].Point, "out of range points stay put")

	assert.Equal(t, orb.Point{5, 0.5}, points.Observations[0].Point, "input layer is not modified")
}

func TestConflate_VertexTolerance(t *testing.T) {
	roads := roadLayer(road(1, orb.Point{0, 0}, orb.Point{5, 0}, orb.Point{10, 0}))
	points := pointLayer(orb.Point{4.5, 0.5})

	res, err := Conflate(points, roads, SnapOptions{EdgeTolerance: 0.1, VertexTolerance: 1}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{5, 0}, res.Layer.Observations[0].Point)
}

func TestConflate_ClosestCandidateWins(t *testing.T) {
	// The edge point is 0.5 away and the vertex at (5,0) is about 0.7 away.
	roads := roadLayer(road(1, orb.Point{0, 0}, orb.Point{5, 0}, orb.Point{10, 0}))
	points := pointLayer(orb.Point{4.5, 0.5})

	res, err := Conflate(points, roads, equalTolerance(1), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{4.5, 0}, res.Layer.Observations[0].Point)
}

func TestConflate_TieGoesToLowestFID(t *testing.T) {
	roads := roadLayer(
		road(7, orb.Point{0, 1}, orb.Point{10, 1}),
		road(3, orb.Point{0, -1}, orb.Point{10, -1}),
	)
	points := pointLayer(orb.Point{5, 0})

	res, err := Conflate(points, roads, equalTolerance(2), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{5, -1}, res.Layer.Observations[0].Point)
}

func TestConflate_ZeroToleranceKeepsVertexPoint(t *testing.T) {
	roads := roadLayer(road(1, orb.Point{0, 0}, orb.Point{10, 0}, orb.Point{10, 10}))
	points := pointLayer(orb.Point{10, 0}, orb.Point{10.5, 0})

	res, err := Conflate(points, roads, equalTolerance(0), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Snapped)
	assert.Zero(t, res.MaxDisplacement)
	assert.Equal(t, orb.Point{10, 0}, res.Layer.Observations[0].Point)
	assert.Equal(t, orb.Point{10.5, 0}, res.Layer.Observations[1].Point)
}

func TestConflate_MultiPartRoad(t *testing.T) {
	roads := roadLayer(domain.Segment{FID: 1, Geometry: orb.MultiLineString{
		{{0, 0}, {10, 0}},
		{{0, 20}, {10, 20}},
	}})
	points := pointLayer(orb.Point{3, 19})

	res, err := Conflate(points, roads, equalTolerance(2), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{3, 20}, res.Layer.Observations[0].Point)
}

func TestConflate_NoRoads(t *testing.T) {
	res, err := Conflate(pointLayer(orb.Point{1, 1}), roadLayer(), equalTolerance(5), slog.Default())
	require.NoError(t, err)
	assert.Zero(t, res.Snapped)
}

func TestConflate_InvalidTolerance(t *testing.T) {
	_, err := Conflate(pointLayer(), roadLayer(), SnapOptions{EdgeTolerance: -1}, slog.Default())
	require.ErrorIs(t, err, domain.ErrInvalidDistance)
	assert.Equal(t, domain.ClassConfig, domain.Classify(err))
}
