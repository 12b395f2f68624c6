package traffic

import "fmt"

// ValidateLaneState checks a lane state against its physical and logical
// invariants. It returns a list of human-readable violations rather than
// an error: the caller chooses whether a noisy frame is fatal. An empty
// list means the state is consistent.
func ValidateLaneState(state LaneState, config TrackerConfig) []string {
	var violations []string

	if state.QueueLengthM < 0 {
		violations = append(violations, fmt.Sprintf("negative queue length: %.2f", state.QueueLengthM))
	}
	if state.QueueLengthM > config.LaneLengthM {
		violations = append(violations, fmt.Sprintf("queue exceeds lane: %.2f > %.2f", state.QueueLengthM, config.LaneLengthM))
	}

	if state.Density < 0 {
		violations = append(violations, fmt.Sprintf("negative density: %.2f", state.Density))
	}
	if state.Density > JamDensity {
		violations = append(violations, fmt.Sprintf("density exceeds jam density: %.2f > %.2f", state.Density, JamDensity))
	}

	if state.AvgWaitingTimeSec < 0 {
		violations = append(violations, fmt.Sprintf("negative waiting time: %.2f", state.AvgWaitingTimeSec))
	}

	if state.QueueVehicleCount > state.VehicleCount {
		violations = append(violations, fmt.Sprintf("more queued than total: %d > %d", state.QueueVehicleCount, state.VehicleCount))
	}
	if state.StoppedVehicles > state.VehicleCount {
		violations = append(violations, fmt.Sprintf("more stopped than total: %d > %d", state.StoppedVehicles, state.VehicleCount))
	}

	return violations
}

// Validate checks an intersection state for per-lane violations, lane-set
// completeness and cross-lane consistency. Like ValidateLaneState it
// reports violations instead of failing, so a degraded sensor frame can be
// logged and tolerated while a genuine logic defect can be escalated.
func (e *Estimator) Validate(state IntersectionState) []string {
	var violations []string

	for _, laneID := range e.laneIDs {
		lane, ok := state.Lanes[laneID]
		if !ok {
			violations = append(violations, fmt.Sprintf("lane %s: missing from snapshot", laneID))
			continue
		}
		for _, v := range ValidateLaneState(lane, e.tracker.config) {
			violations = append(violations, fmt.Sprintf("lane %s: %s", laneID, v))
		}
		if lane.Timestamp != state.Timestamp {
			violations = append(violations, fmt.Sprintf("lane %s: timestamp %.3f differs from intersection %.3f", laneID, lane.Timestamp, state.Timestamp))
		}
	}
	for laneID := range state.Lanes {
		if _, configured := indexOf(e.laneIDs, laneID); !configured {
			violations = append(violations, fmt.Sprintf("lane %s: not in configured lane set", laneID))
		}
	}

	sumVehicles, sumStopped := 0, 0
	for _, lane := range state.Lanes {
		sumVehicles += lane.VehicleCount
		sumStopped += lane.StoppedVehicles
	}
	if sumVehicles != state.TotalVehicles {
		violations = append(violations, fmt.Sprintf("vehicle count mismatch: sum=%d, total=%d", sumVehicles, state.TotalVehicles))
	}
	if sumStopped != state.TotalStopped {
		violations = append(violations, fmt.Sprintf("stopped count mismatch: sum=%d, total=%d", sumStopped, state.TotalStopped))
	}

	if state.MaxQueueLengthM < 0 {
		violations = append(violations, fmt.Sprintf("negative max queue length: %.2f", state.MaxQueueLengthM))
	}
	if state.TotalWaitingTimeSec < 0 {
		violations = append(violations, fmt.Sprintf("negative total waiting time: %.2f", state.TotalWaitingTimeSec))
	}

	return violations
}

func indexOf(ids []string, id string) (int, bool) {
	for i, v := range ids {
		if v == id {
			return i, true
		}
	}
	return 0, false
}
