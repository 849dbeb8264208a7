package geojson

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Source reads layers from GeoJSON FeatureCollection files.
type Source struct{}

// NewSource creates a GeoJSON layer source.
func NewSource() *Source { return &Source{} }

// ReadPoints loads a crash point layer. Numeric properties become observation
// values. Timestamps may be strings in common layouts or epoch milliseconds.
func (s *Source) ReadPoints(ctx context.Context, path string, schema domain.PointSchema) (*domain.PointLayer, error) {
	fc, err := readCollection(ctx, path)
	if err != nil {
		return nil, err
	}

	if len(fc.Features) > 0 && !anyHas(fc, schema.DateField) {
		return nil, &domain.ConfigError{Field: "DATE_FIELD", Value: schema.DateField, Err: domain.ErrInvalidField}
	}
	if len(fc.Features) > 0 && schema.CategoryField != "" && !anyHas(fc, schema.CategoryField) {
		return nil, &domain.ConfigError{Field: "INCIDENT_TYPE_FIELD", Value: schema.CategoryField, Err: domain.ErrInvalidField}
	}

	layer := &domain.PointLayer{Name: layerName(path)}
	fields := map[string]bool{}
	for i, f := range fc.Features {
		pt, ok := pointOf(f.Geometry)
		if !ok {
			return nil, &domain.DataError{
				Stage:  "read points",
				Detail: fmt.Sprintf("%s feature %d has %s geometry", path, i, geometryType(f.Geometry)),
				Err:    errUnsupportedGeometry,
			}
		}

		o := domain.Observation{FID: featureID(f, i), Point: pt, Values: map[string]float64{}}
		for k, v := range f.Properties {
			if n, ok := v.(float64); ok && k != schema.DateField {
				o.Values[k] = n
				fields[k] = true
			}
		}

		raw := f.Properties[schema.DateField]
		if o.Time, err = parseTime(raw); err != nil {
			return nil, &domain.DataError{
				Stage:  "read points",
				Detail: fmt.Sprintf("feature %d %s: %v", o.FID, schema.DateField, err),
				Err:    errBadTimestamp,
			}
		}
		if c := f.Properties[schema.CategoryField]; schema.CategoryField != "" && c != nil {
			o.Category = stringify(c)
		}
		layer.Observations = append(layer.Observations, o)
	}

	for k := range fields {
		layer.Fields = append(layer.Fields, k)
	}
	slices.Sort(layer.Fields)
	return layer, nil
}

// ReadSegments loads a road line layer. LineString and MultiLineString
// geometries are accepted; every segment keeps its source properties.
func (s *Source) ReadSegments(ctx context.Context, path string) (*domain.SegmentLayer, error) {
	fc, err := readCollection(ctx, path)
	if err != nil {
		return nil, err
	}

	layer := &domain.SegmentLayer{Name: layerName(path)}
	for i, f := range fc.Features {
		var mls orb.MultiLineString
		switch g := f.Geometry.(type) {
		case orb.LineString:
			mls = orb.MultiLineString{g}
		case orb.MultiLineString:
			mls = g
		default:
			return nil, &domain.DataError{
				Stage:  "read segments",
				Detail: fmt.Sprintf("%s feature %d has %s geometry", path, i, geometryType(f.Geometry)),
				Err:    errUnsupportedGeometry,
			}
		}
		layer.Segments = append(layer.Segments, domain.Segment{
			FID:        featureID(f, i),
			Geometry:   mls,
			Properties: map[string]any(f.Properties),
		})
	}
	return layer, nil
}

func readCollection(ctx context.Context, path string) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layer %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode layer %s: %w", path, err)
	}
	return fc, nil
}

func anyHas(fc *geojson.FeatureCollection, key string) bool {
	for _, f := range fc.Features {
		if v, ok := f.Properties[key]; ok && v != nil {
			return true
		}
	}
	return false
}

func layerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// featureID uses a numeric feature id when present, else the 1-based position.
func featureID(f *geojson.Feature, i int) int64 {
	switch id := f.ID.(type) {
	case float64:
		return int64(id)
	case string:
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	return int64(i + 1)
}

func pointOf(g orb.Geometry) (orb.Point, bool) {
	switch g := g.(type) {
	case orb.Point:
		return g, true
	case orb.MultiPoint:
		if len(g) == 1 {
			return g[0], true
		}
	}
	return orb.Point{}, false
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "no"
	}
	return g.GeoJSONType()
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", t)
	case nil:
		return time.Time{}, errors.New("missing timestamp")
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
