package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/paulmach/orb"
)

// PointSchema names the properties read from a crash layer.
type PointSchema struct {
	DateField string
	// CategoryField is optional; empty skips category extraction.
	CategoryField string
}

// Observation is a single crash report.
type Observation struct {
	FID      int64
	Point    orb.Point
	Time     time.Time
	Category string
	// Values holds numeric attributes keyed by field name, including the
	// derived Fatalities flag once classified.
	Values map[string]float64
}

// Value returns the numeric attribute and whether it is present.
func (o Observation) Value(field string) (float64, bool) {
	v, ok := o.Values[field]
	return v, ok
}

// PointLayer is a named collection of observations.
type PointLayer struct {
	Name string
	// Fields lists the numeric attributes available on the layer.
	Fields       []string
	Observations []Observation
}

// Clone returns a deep copy so stages can move or annotate points without
// touching the ingested layer.
func (l *PointLayer) Clone(name string) *PointLayer {
	out := &PointLayer{
		Name:         name,
		Fields:       slices.Clone(l.Fields),
		Observations: make([]Observation, len(l.Observations)),
	}
	for i, o := range l.Observations {
		o.Values = maps.Clone(o.Values)
		out.Observations[i] = o
	}
	return out
}

// HasField reports whether the layer carries the numeric field.
func (l *PointLayer) HasField(name string) bool {
	return slices.Contains(l.Fields, name)
}

// Timestamps returns every observation time in layer order.
func (l *PointLayer) Timestamps() []time.Time {
	ts := make([]time.Time, len(l.Observations))
	for i, o := range l.Observations {
		ts[i] = o.Time
	}
	return ts
}

// Points returns every observation location in layer order.
func (l *PointLayer) Points() []orb.Point {
	pts := make([]orb.Point, len(l.Observations))
	for i, o := range l.Observations {
		pts[i] = o.Point
	}
	return pts
}

// Segment is one road polyline. Multi-part roads keep all their parts.
type Segment struct {
	FID        int64
	Geometry   orb.MultiLineString
	Properties map[string]any
	Derived    map[string]float64
}

// Get returns a derived value and whether it is set.
func (s Segment) Get(field string) (float64, bool) {
	v, ok := s.Derived[field]
	return v, ok
}

// SegmentLayer is a named collection of segments plus the ordered list of
// derived fields appended so far.
type SegmentLayer struct {
	Name     string
	Fields   []string
	Segments []Segment
}

// Clone returns a deep copy of the derived state. Geometry and source
// properties are shared since no stage rewrites them.
func (l *SegmentLayer) Clone(name string) *SegmentLayer {
	out := &SegmentLayer{
		Name:     name,
		Fields:   slices.Clone(l.Fields),
		Segments: make([]Segment, len(l.Segments)),
	}
	for i, s := range l.Segments {
		s.Derived = maps.Clone(s.Derived)
		if s.Derived == nil {
			s.Derived = map[string]float64{}
		}
		out.Segments[i] = s
	}
	return out
}

// AddField registers a derived field name once, keeping creation order.
func (l *SegmentLayer) AddField(name string) {
	if !slices.Contains(l.Fields, name) {
		l.Fields = append(l.Fields, name)
	}
}

// HasField reports whether a derived field has been added.
func (l *SegmentLayer) HasField(name string) bool {
	return slices.Contains(l.Fields, name)
}

// Column returns the derived field for every segment in layer order. Missing
// values are returned as 0 with ok=false.
func (l *SegmentLayer) Column(field string) (values []float64, ok bool) {
	values = make([]float64, len(l.Segments))
	ok = true
	for i, s := range l.Segments {
		v, present := s.Derived[field]
		if !present {
			ok = false
		}
		values[i] = v
	}
	return values, ok
}
