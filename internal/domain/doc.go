// Package domain models traffic-crash observations, road segments, and the
// derived per-segment statistics used to rank segments for intervention.
//
// # Layers
//
// Two layers enter a run:
//
//	Point layer: one Observation per reported crash. Coordinates are in the
//	working projection (planar, CRS already resolved upstream). Each
//	observation carries a timestamp, an optional incident-type category, and
//	any numeric properties found on the source feature.
//
//	Line layer: one Segment per road polyline. Segment FIDs are stable for
//	the whole run and every derived attribute is appended to Segment.Derived;
//	source properties and geometry are never rewritten.
//
// # Field Names
//
// Derived field names are the contract with the reporting collaborator and
// do not change between runs:
//
//	Join_Count      crashes matched to the segment
//	tot_fata        fatal crashes matched to the segment
//	Length_mi       segment length (suffix follows the length unit)
//	Avg_crash_yr    crashes per segment length per time unit (yr, mo, wk)
//	Avg_fata_yr     fatalities per segment length per time unit
//	GiZScore        Getis-Ord Gi* z-score of the analysed rate
//	GiPValue        two-tailed p-value of the z-score
//	Gi_Bin          confidence bin in -3..3 (cold < 0 < hot)
//	NNeighbors      neighbours inside the distance band, self included
//
// Hotspot fields for the fatality rate carry a "_fata" suffix.
//
// # Time Span
//
// The observation window is (max - min) timestamp divided by a fixed unit
// length (year = 365 days, month = 30, week = 7) and rounded half-to-even.
// A window shorter than half a unit rounds to zero; see [ZeroSpanPolicy].
//
// # Errors
//
// Failures are classified as configuration errors ([ConfigError]) or
// data-quality errors ([DataError]); both wrap one of the sentinel errors in
// errors.go so callers can test with errors.Is.
package domain
