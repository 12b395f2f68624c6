package traffic

// LaneState is the estimated traffic state for a single lane at one
// timestamp. It is an immutable value: a new LaneState is constructed on
// every update and the previous one is superseded wholesale. Control code
// must never modify one in place.
//
// Physical interpretation:
//   - QueueLengthM: spatial extent of stopped vehicles (metres from the
//     stop line to the farthest queued vehicle)
//   - Density: vehicle concentration, vehicles per 100 m of lane
//   - AvgWaitingTimeSec: mean delay of currently stopped vehicles,
//     measured from each vehicle's stop event
//   - AvgSpeedMps: mean speed over all vehicles in the lane
type LaneState struct {
	// Identity
	LaneID    string  `json:"lane_id"`
	Timestamp float64 `json:"timestamp"`

	// Basic counts
	VehicleCount    int `json:"vehicle_count"`
	StoppedVehicles int `json:"stopped_vehicles"`

	// Queue metrics
	QueueLengthM      float64 `json:"queue_length_m"`
	QueueVehicleCount int     `json:"queue_vehicle_count"`

	// Flow metrics
	Density           float64 `json:"density"`
	AvgSpeedMps       float64 `json:"avg_speed_mps"`
	AvgWaitingTimeSec float64 `json:"avg_waiting_time_sec"`

	// Emergency handling. EmergencyDistanceM is NoStopLineDistance when no
	// emergency vehicle with a usable stop-line distance is present.
	HasEmergencyVehicle bool    `json:"has_emergency_vehicle"`
	EmergencyDistanceM  float64 `json:"emergency_distance_m"`

	// Raw per-vehicle data retained for diagnostics only.
	distances []float64
	speeds    []float64
}

// VehicleDistances returns a copy of the raw per-vehicle stop-line
// distances used to produce this state.
func (s LaneState) VehicleDistances() []float64 {
	out := make([]float64, len(s.distances))
	copy(out, s.distances)
	return out
}

// VehicleSpeeds returns a copy of the raw per-vehicle speeds used to
// produce this state.
func (s LaneState) VehicleSpeeds() []float64 {
	out := make([]float64, len(s.speeds))
	copy(out, s.speeds)
	return out
}

// emptyLaneState returns the all-zero state for a lane with no vehicles.
func emptyLaneState(laneID string, timestamp float64) LaneState {
	return LaneState{
		LaneID:             laneID,
		Timestamp:          timestamp,
		EmergencyDistanceM: NoStopLineDistance,
	}
}
