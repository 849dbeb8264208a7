package pipeline

import (
	"strconv"
	"strings"

	"github.com/couchcryptid/crash-hotspot/internal/config"
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/couchcryptid/crash-hotspot/internal/spatial"
)

// Params is the explicit per-run configuration handed to Run.
type Params struct {
	CrashLayer string
	RoadLayer  string
	Schema     domain.PointSchema
	// FatalCategory enables fatality analysis when Schema.CategoryField is also set.
	FatalCategory string

	SnapDistance       domain.Distance
	VertexSnapDistance domain.Distance
	LengthUnit         domain.LengthUnit
	CoordinateUnit     domain.LengthUnit
	XYTolerance        float64

	Granularity             domain.Granularity
	ZeroSpanPolicy          domain.ZeroSpanPolicy
	AnalyzeFatalityHotspots bool
	NeighborCount           int

	OutputName       string
	Overwrite        bool
	KeepIntermediate bool
}

// ParamsFromConfig maps the loaded environment configuration onto run params.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		CrashLayer:              cfg.CrashLayer,
		RoadLayer:               cfg.RoadLayer,
		Schema:                  domain.PointSchema{DateField: cfg.DateField, CategoryField: cfg.IncidentTypeField},
		FatalCategory:           cfg.FatalCategory,
		SnapDistance:            cfg.SnapDistance,
		VertexSnapDistance:      cfg.VertexSnapDistance,
		LengthUnit:              cfg.LengthUnit,
		CoordinateUnit:          cfg.CoordinateUnit,
		XYTolerance:             cfg.XYTolerance,
		Granularity:             cfg.Granularity,
		ZeroSpanPolicy:          cfg.ZeroSpanPolicy,
		AnalyzeFatalityHotspots: cfg.AnalyzeFatalityHotspots,
		NeighborCount:           cfg.NeighborCount,
		OutputName:              cfg.OutputName,
		Overwrite:               cfg.Overwrite,
		KeepIntermediate:        cfg.KeepIntermediate,
	}
}

// fatalities reports whether the run classifies fatal crashes.
func (p Params) fatalities() bool {
	return p.Schema.CategoryField != "" && p.FatalCategory != ""
}

// normalize fills unit and neighbour defaults and rejects parameters that
// would fail a later stage, before any layer is read.
func (p Params) normalize() (Params, error) {
	switch {
	case strings.TrimSpace(p.CrashLayer) == "":
		return p, &domain.ConfigError{Field: "crash layer", Err: domain.ErrInvalidField}
	case strings.TrimSpace(p.RoadLayer) == "":
		return p, &domain.ConfigError{Field: "road layer", Err: domain.ErrInvalidField}
	case strings.TrimSpace(p.Schema.DateField) == "":
		return p, &domain.ConfigError{Field: "date field", Err: domain.ErrInvalidField}
	case strings.TrimSpace(p.OutputName) == "":
		return p, &domain.ConfigError{Field: "output name", Err: domain.ErrInvalidField}
	case p.NeighborCount < 0:
		return p, &domain.ConfigError{Field: "neighbor count", Value: strconv.Itoa(p.NeighborCount), Err: domain.ErrInvalidField}
	case p.AnalyzeFatalityHotspots && !p.fatalities():
		return p, &domain.ConfigError{Field: "analyze fatality hotspots", Value: "true", Err: domain.ErrInvalidField}
	}

	g, err := domain.ParseGranularity(string(p.Granularity))
	if err != nil {
		return p, &domain.ConfigError{Field: "granularity", Value: string(p.Granularity), Err: err}
	}
	p.Granularity = g

	policy, err := domain.ParseZeroSpanPolicy(string(p.ZeroSpanPolicy))
	if err != nil {
		return p, &domain.ConfigError{Field: "zero span policy", Value: string(p.ZeroSpanPolicy), Err: domain.ErrInvalidField}
	}
	p.ZeroSpanPolicy = policy

	if p.VertexSnapDistance == (domain.Distance{}) {
		p.VertexSnapDistance = p.SnapDistance
	}
	if p.LengthUnit == "" {
		p.LengthUnit = p.SnapDistance.Unit
	}
	if p.CoordinateUnit == "" {
		p.CoordinateUnit = domain.Meters
	}
	for _, u := range []*domain.LengthUnit{&p.SnapDistance.Unit, &p.VertexSnapDistance.Unit, &p.LengthUnit, &p.CoordinateUnit} {
		parsed, err := domain.ParseLengthUnit(string(*u))
		if err != nil {
			return p, &domain.ConfigError{Field: "unit", Value: string(*u), Err: err}
		}
		*u = parsed
	}

	if p.NeighborCount == 0 {
		p.NeighborCount = spatial.DefaultNeighborCount
	}
	return p, nil
}
