package domain

import (
	"fmt"
	"strings"
)

const (
	// FatalitiesField is the per-observation 0/1 fatal flag added by ClassifyFatalities.
	FatalitiesField = "Fatalities"
	// CrashCountField counts the observations matched to a segment.
	CrashCountField = "Join_Count"
	// FatalitySumField sums FatalitiesField over the matched observations.
	FatalitySumField = "tot_fata"

	fatalitySuffix = "_fata"
)

// MergeKind is the aggregation applied when several points map to one segment.
type MergeKind string

const (
	MergeCount MergeKind = "count"
	MergeSum   MergeKind = "sum"
)

// MergeRule produces one output field on the segment layer.
type MergeRule struct {
	Output string
	Kind   MergeKind
	// Source is the point field summed by MergeSum. Unused by MergeCount.
	Source string
}

// MergeSpec is the ordered, validated list of merge rules for a run.
type MergeSpec []MergeRule

// Validate checks the spec against the point layer's numeric fields. It is
// called once before any aggregation work.
func (s MergeSpec) Validate(points *PointLayer) error {
	if len(s) == 0 {
		return &ConfigError{Field: "merge", Value: "", Err: fmt.Errorf("%w: no rules", ErrInvalidMergeRule)}
	}
	seen := make(map[string]bool, len(s))
	for _, r := range s {
		if strings.TrimSpace(r.Output) == "" {
			return &ConfigError{Field: "merge.output", Value: r.Output, Err: ErrInvalidField}
		}
		if seen[r.Output] {
			return &ConfigError{Field: "merge.output", Value: r.Output, Err: fmt.Errorf("%w: duplicate output", ErrInvalidMergeRule)}
		}
		seen[r.Output] = true

		switch r.Kind {
		case MergeCount:
		case MergeSum:
			if r.Source == "" || (points != nil && !points.HasField(r.Source)) {
				return &ConfigError{Field: "merge.source", Value: r.Source, Err: ErrInvalidField}
			}
		default:
			return &ConfigError{Field: "merge.kind", Value: string(r.Kind), Err: ErrInvalidMergeRule}
		}
	}
	return nil
}

// CrashMergeSpec returns the merge rules for a run: always a crash count, plus
// the fatality sum when fatalities are analysed.
func CrashMergeSpec(withFatalities bool) MergeSpec {
	spec := MergeSpec{{Output: CrashCountField, Kind: MergeCount}}
	if withFatalities {
		spec = append(spec, MergeRule{Output: FatalitySumField, Kind: MergeSum, Source: FatalitiesField})
	}
	return spec
}

// CrashRateField names the crash rate field for the granularity, e.g. Avg_crash_yr.
func CrashRateField(g Granularity) string {
	return "Avg_crash_" + g.Suffix()
}

// FatalityRateField names the fatality rate field for the granularity, e.g. Avg_fata_yr.
func FatalityRateField(g Granularity) string {
	return "Avg_fata_" + g.Suffix()
}

// HotspotFields are the output field names for one analysed variable.
type HotspotFields struct {
	ZScore     string
	PValue     string
	Bin        string
	Neighbours string
}

// CrashHotspotFields returns the Gi* field names for the crash rate.
func CrashHotspotFields() HotspotFields {
	return HotspotFields{ZScore: "GiZScore", PValue: "GiPValue", Bin: "Gi_Bin", Neighbours: "NNeighbors"}
}

// FatalityHotspotFields returns the Gi* field names for the fatality rate.
func FatalityHotspotFields() HotspotFields {
	f := CrashHotspotFields()
	return HotspotFields{
		ZScore:     f.ZScore + fatalitySuffix,
		PValue:     f.PValue + fatalitySuffix,
		Bin:        f.Bin + fatalitySuffix,
		Neighbours: f.Neighbours + fatalitySuffix,
	}
}
