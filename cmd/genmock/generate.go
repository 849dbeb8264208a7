package main

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var startDate = time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)

var severities = []string{"Injury", "Property Damage Only", "Possible Injury"}

type options struct {
	Seed       uint64
	Grid       int
	Spacing    float64
	Background int
	Cluster    int
	FatalShare float64
	Years      int
	// Jitter is the largest perpendicular offset from the road, in meters.
	Jitter     float64
}

func defaultOptions() options {
	return options{
		Seed:       42,
		Grid:       11,
		Spacing:    200,
		Background: 400,
		Cluster:    150,
		FatalShare: 0.03,
		Years:      3,
		Jitter:     15,
	}
}

func (o options) validate() error {
	switch {
	case o.Grid < 3:
		return errors.New("grid must be at least 3")
	case o.Spacing <= 0:
		return errors.New("spacing must be positive")
	case o.Background < 0 || o.Cluster < 0:
		return errors.New("crash counts must not be negative")
	case o.FatalShare < 0 || o.FatalShare > 1:
		return errors.New("fatal-share must be between 0 and 1")
	case o.Years < 1:
		return errors.New("years must be at least 1")
	}
	return nil
}

type block struct {
	a, b   orb.Point
	centre bool
}

// blocks lays out horizontal then vertical blocks between grid intersections.
// Blocks touching the centre intersection are marked for the planted cluster.
func blocks(o options) []block {
	mid := o.Grid / 2
	var out []block
	for j := range o.Grid {
		for i := range o.Grid - 1 {
			out = append(out, block{
				a:      orb.Point{float64(i) * o.Spacing, float64(j) * o.Spacing},
				b:      orb.Point{float64(i+1) * o.Spacing, float64(j) * o.Spacing},
				centre: j == mid && (i == mid || i == mid-1),
			})
		}
	}
	for i := range o.Grid {
		for j := range o.Grid - 1 {
			out = append(out, block{
				a:      orb.Point{float64(i) * o.Spacing, float64(j) * o.Spacing},
				b:      orb.Point{float64(i) * o.Spacing, float64(j+1) * o.Spacing},
				centre: i == mid && (j == mid || j == mid-1),
			})
		}
	}
	return out
}

// generate builds the road and crash collections.
func generate(o options) (roads, crashes *geojson.FeatureCollection) {
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))
	bs := blocks(o)

	roads = geojson.NewFeatureCollection()
	var centre []block
	for i, b := range bs {
		f := geojson.NewFeature(orb.LineString{b.a, b.b})
		f.ID = i + 1
		f.Properties["road_id"] = i + 1
		f.Properties["name"] = roadName(b)
		roads.Append(f)
		if b.centre {
			centre = append(centre, b)
		}
	}

	span := time.Duration(o.Years) * 365 * 24 * time.Hour
	crashes = geojson.NewFeatureCollection()
	add := func(b block) {
		p := alongBlock(rng, b, o.Jitter)
		f := geojson.NewFeature(p)
		f.ID = len(crashes.Features) + 1
		ts := startDate.Add(time.Duration(rng.Int64N(int64(span))))
		f.Properties["CrashDate"] = ts.Format("2006-01-02 15:04:05")
		f.Properties["Severity"] = severity(rng, o.FatalShare)
		f.Properties["Vehicles"] = 1 + rng.IntN(3)
		crashes.Append(f)
	}
	for range o.Background {
		add(bs[rng.IntN(len(bs))])
	}
	for range o.Cluster {
		add(centre[rng.IntN(len(centre))])
	}
	return roads, crashes
}

// alongBlock picks a uniform position on the block and offsets it sideways.
func alongBlock(rng *rand.Rand, b block, jitter float64) orb.Point {
	t := rng.Float64()
	off := (rng.Float64()*2 - 1) * jitter
	x := b.a[0] + t*(b.b[0]-b.a[0])
	y := b.a[1] + t*(b.b[1]-b.a[1])
	if b.a[1] == b.b[1] {
		y += off
	} else {
		x += off
	}
	return orb.Point{x, y}
}

func severity(rng *rand.Rand, fatalShare float64) string {
	if rng.Float64() < fatalShare {
		return "Fatal"
	}
	return severities[rng.IntN(len(severities))]
}

func roadName(b block) string {
	if b.a[1] == b.b[1] {
		return "Street " + strconv.Itoa(int(b.a[1]))
	}
	return "Avenue " + strconv.Itoa(int(b.a[0]))
}
