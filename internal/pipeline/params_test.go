package pipeline

import (
	"testing"

	"github.com/couchcryptid/crash-hotspot/internal/config"
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalParams() Params {
	return Params{
		CrashLayer:   "c.geojson",
		RoadLayer:    "r.geojson",
		Schema:       domain.PointSchema{DateField: "d"},
		SnapDistance: domain.Distance{Value: 0.25},
		Granularity:  "MONTH",
		OutputName:   "out",
	}
}

func TestParams_NormalizeDefaults(t *testing.T) {
	p, err := minimalParams().normalize()
	require.NoError(t, err)

	assert.Equal(t, domain.Month, p.Granularity)
	assert.Equal(t, domain.ClampZeroSpan, p.ZeroSpanPolicy)
	assert.Equal(t, domain.Miles, p.SnapDistance.Unit)
	assert.Equal(t, domain.Distance{Value: 0.25, Unit: domain.Miles}, p.VertexSnapDistance)
	assert.Equal(t, domain.Miles, p.LengthUnit)
	assert.Equal(t, domain.Meters, p.CoordinateUnit)
	assert.Equal(t, 8, p.NeighborCount)
	assert.False(t, p.fatalities())
}

func TestParams_NormalizeKeepsSplitTolerance(t *testing.T) {
	in := minimalParams()
	in.SnapDistance = domain.Distance{Value: 10, Unit: domain.Feet}
	in.VertexSnapDistance = domain.Distance{Value: 30, Unit: domain.Feet}
	in.LengthUnit = domain.Kilometers

	p, err := in.normalize()
	require.NoError(t, err)
	assert.InDelta(t, 30, p.VertexSnapDistance.Value, 0)
	assert.Equal(t, domain.Kilometers, p.LengthUnit)
}

func TestParams_NormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no crash layer", func(p *Params) { p.CrashLayer = " " }},
		{"no road layer", func(p *Params) { p.RoadLayer = "" }},
		{"no date field", func(p *Params) { p.Schema.DateField = "" }},
		{"no output name", func(p *Params) { p.OutputName = "" }},
		{"negative neighbours", func(p *Params) { p.NeighborCount = -1 }},
		{"bad granularity", func(p *Params) { p.Granularity = "fortnight" }},
		{"bad policy", func(p *Params) { p.ZeroSpanPolicy = "ignore" }},
		{"bad coordinate unit", func(p *Params) { p.CoordinateUnit = "parsecs" }},
		{"fatality hotspots without category", func(p *Params) { p.AnalyzeFatalityHotspots = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := minimalParams()
			tt.mutate(&p)
			_, err := p.normalize()
			require.Error(t, err)
			assert.Equal(t, domain.ClassConfig, domain.Classify(err))
		})
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := &config.Config{
		CrashLayer:        "crashes.geojson",
		RoadLayer:         "roads.geojson",
		DateField:         "CrashDate",
		IncidentTypeField: "Severity",
		FatalCategory:     "Fatal",
		SnapDistance:      domain.Distance{Value: 0.1, Unit: domain.Miles},
		Granularity:       domain.Week,
		NeighborCount:     8,
		OutputName:        "Crash_hotspots",
		Overwrite:         true,
	}

	p := ParamsFromConfig(cfg)
	assert.Equal(t, domain.PointSchema{DateField: "CrashDate", CategoryField: "Severity"}, p.Schema)
	assert.Equal(t, "Fatal", p.FatalCategory)
	assert.True(t, p.fatalities())
	assert.Equal(t, domain.Week, p.Granularity)
	assert.True(t, p.Overwrite)
}
