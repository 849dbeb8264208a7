package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NotAnalyzed is reported for fatality totals when fatality analysis was not requested.
const NotAnalyzed = "Not analyzed"

// FatalityTotal is the total fatal crash count, or unset when fatalities were
// not analysed. A zero total is a real zero, not "not analysed".
type FatalityTotal struct {
	Count    int
	Analyzed bool
}

// Fatalities returns an analysed total.
func Fatalities(n int) FatalityTotal {
	return FatalityTotal{Count: n, Analyzed: true}
}

func (f FatalityTotal) String() string {
	if !f.Analyzed {
		return NotAnalyzed
	}
	return strconv.Itoa(f.Count)
}

// MarshalJSON encodes the total as a number, or as the NotAnalyzed string.
func (f FatalityTotal) MarshalJSON() ([]byte, error) {
	if !f.Analyzed {
		return json.Marshal(NotAnalyzed)
	}
	return json.Marshal(f.Count)
}

// UnmarshalJSON accepts either encoding produced by MarshalJSON.
func (f *FatalityTotal) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = Fatalities(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s != NotAnalyzed {
		return fmt.Errorf("fatality total: unexpected value %s", data)
	}
	*f = FatalityTotal{}
	return nil
}

// DistanceBand summarises each point's distance to its k-th nearest
// neighbour. Avg is the fixed band used by the hotspot statistic.
type DistanceBand struct {
	K   int     `json:"k"`
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// Summary holds the scalars handed to the reporting collaborator.
type Summary struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	CrashLayer  string       `json:"crash_layer"`
	RoadLayer   string       `json:"road_layer"`
	OutputLayer string       `json:"output_layer"`
	Granularity Granularity  `json:"granularity"`
	TimeSpan    int          `json:"time_span"`
	SpanClamped bool         `json:"time_span_clamped,omitempty"`
	Band        DistanceBand `json:"distance_band"`

	TotalObservations    int           `json:"total_observations"`
	TotalSegments        int           `json:"total_segments"`
	SegmentsWithMatches  int           `json:"segments_with_crashes"`
	CrashInvolvementRate float64       `json:"crash_involvement_rate"`
	HotSpots             int           `json:"hot_spots"`
	ColdSpots            int           `json:"cold_spots"`
	TotalFatalities      FatalityTotal `json:"total_fatalities"`

	Breakdown Breakdown `json:"breakdown"`
}

// Breakdown carries the per-period tables the report charts are built from.
type Breakdown struct {
	CrashesByYear map[int]int `json:"crashes_by_year"`

	// Mean fatal flag per weekday and per year; nil when fatalities were not analysed.
	FatalityRateByWeekday []WeekdayRate   `json:"fatality_rate_by_weekday,omitempty"`
	FatalityRateByYear    map[int]float64 `json:"fatality_rate_by_year,omitempty"`
}

// WeekdayRate is the mean fatal flag for one day of the week.
type WeekdayRate struct {
	Day  string  `json:"day"`
	Mean float64 `json:"mean"`
}

// weekdayOrder lists days Monday first, matching the report charts.
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// BuildBreakdown computes yearly crash counts and, when withFatalities is set,
// the mean Fatalities flag grouped by weekday and by year. Weekdays with no
// observations are omitted.
func BuildBreakdown(points *PointLayer, withFatalities bool) Breakdown {
	b := Breakdown{CrashesByYear: map[int]int{}}

	type acc struct{ sum, n float64 }
	byDay := map[time.Weekday]*acc{}
	byYear := map[int]*acc{}

	for _, o := range points.Observations {
		year := o.Time.Year()
		b.CrashesByYear[year]++
		if !withFatalities {
			continue
		}
		flag := o.Values[FatalitiesField]
		if byDay[o.Time.Weekday()] == nil {
			byDay[o.Time.Weekday()] = &acc{}
		}
		byDay[o.Time.Weekday()].sum += flag
		byDay[o.Time.Weekday()].n++
		if byYear[year] == nil {
			byYear[year] = &acc{}
		}
		byYear[year].sum += flag
		byYear[year].n++
	}

	if !withFatalities {
		return b
	}

	b.FatalityRateByYear = make(map[int]float64, len(byYear))
	for y, a := range byYear {
		b.FatalityRateByYear[y] = a.sum / a.n
	}
	for _, d := range weekdayOrder {
		if a := byDay[d]; a != nil {
			b.FatalityRateByWeekday = append(b.FatalityRateByWeekday, WeekdayRate{Day: d.String(), Mean: a.sum / a.n})
		}
	}
	return b
}

// Run identifies one pipeline invocation for stores and publishers.
type Run struct {
	ID        string
	StartedAt time.Time
}
