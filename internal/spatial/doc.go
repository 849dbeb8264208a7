// Package spatial moves crash points onto the road network and joins them to
// road segments.
//
// All distances are planar, measured in the working projection's coordinate
// unit. Callers convert user-facing tolerances with domain.Distance.In before
// calling into this package.
package spatial

// Layer names used for the intermediate outputs of a run.
const (
	ConflatedLayerName = "crash_data_copy"
	JoinedLayerName    = "joined_crash_road_data"
)
