// Package traffic implements per-lane and intersection-level traffic state
// estimation from a stream of per-vehicle observations.
//
// The pipeline is frame-driven and single-threaded: one Update call per
// control tick, in strict timestamp order. Components exchange only
// immutable snapshots; all mutable bookkeeping is owned by the component
// that created it.
package traffic

import "math"

// NoStopLineDistance is the sentinel distance used when a vehicle has no
// lane assignment and therefore no stop-line distance.
const NoStopLineDistance = -1.0

// Observation is one perceived vehicle at a single frame, as produced by an
// upstream perception source. It is the boundary between perception and
// state estimation: fields are read-only here.
//
// Field guarantees (matching the perception contract):
//   - TrackID is stable across frames for the same physical vehicle.
//   - LaneID is empty when the vehicle is not in any approach lane, in
//     which case DistanceToStopLine is NoStopLineDistance.
//   - Emergency is a conservative flag (false negatives acceptable).
type Observation struct {
	TrackID    int64   `json:"track_id"`
	Class      string  `json:"class,omitempty"`
	Emergency  bool    `json:"is_emergency"`
	Confidence float64 `json:"confidence"`

	// Kinematics, world frame, metres and metres/second.
	PositionX float64 `json:"position_x"`
	PositionY float64 `json:"position_y"`
	VelocityX float64 `json:"velocity_x"`
	VelocityY float64 `json:"velocity_y"`

	// Lane assignment, intersection-specific.
	LaneID             string  `json:"lane_id,omitempty"`
	DistanceToStopLine float64 `json:"distance_to_stop_line"`
}

// Speed returns the scalar speed as the Euclidean norm of the velocity
// vector. A velocity carrying NaN or Inf components (a degraded perception
// frame) yields 0 rather than propagating the bad value into lane metrics.
func (o Observation) Speed() float64 {
	s := math.Hypot(o.VelocityX, o.VelocityY)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// HasLane reports whether the observation carries a usable lane assignment.
func (o Observation) HasLane() bool {
	return o.LaneID != ""
}

// HasStopLineDistance reports whether the stop-line distance is usable for
// queue and emergency metrics. Negative or non-finite distances come from
// vehicles outside approach lanes or from degraded perception frames.
func (o Observation) HasStopLineDistance() bool {
	return o.DistanceToStopLine >= 0 &&
		!math.IsNaN(o.DistanceToStopLine) && !math.IsInf(o.DistanceToStopLine, 0)
}
