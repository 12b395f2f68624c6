package traffic

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Default estimation thresholds. These are the frozen operating values;
// TrackerConfig exists so tuning files can override them in deployment.
const (
	// DefaultStoppedSpeedThresholdMps is the speed below which a vehicle is
	// considered effectively stopped.
	DefaultStoppedSpeedThresholdMps = 0.5
	// DefaultQueueDistanceThresholdM is the stop-line distance within which
	// a stopped vehicle counts toward the queue.
	DefaultQueueDistanceThresholdM = 30.0
	// DefaultLaneLengthM is the fixed reference lane length used to
	// normalise density, so densities are comparable across lanes and
	// perception sources of differing fidelity.
	DefaultLaneLengthM = 100.0
	// DefaultCleanupTimeoutSec is how long a vehicle may be absent before
	// its bookkeeping is purged.
	DefaultCleanupTimeoutSec = 10.0
	// DefaultHistoryLength is the number of per-lane states retained for
	// diagnostics.
	DefaultHistoryLength = 50
	// JamDensity is the physical upper bound on lane density used by
	// validation, vehicles per 100 m.
	JamDensity = 20.0
)

// TrackerConfig holds configuration parameters for the lane tracker.
type TrackerConfig struct {
	StoppedSpeedThresholdMps float64 // Speed below which a vehicle is stopped
	QueueDistanceThresholdM  float64 // Queue detection zone from the stop line
	LaneLengthM              float64 // Density normalisation constant
	CleanupTimeoutSec        float64 // Absence before bookkeeping is purged
	HistoryLength            int     // Per-lane states kept for diagnostics
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		StoppedSpeedThresholdMps: DefaultStoppedSpeedThresholdMps,
		QueueDistanceThresholdM:  DefaultQueueDistanceThresholdM,
		LaneLengthM:              DefaultLaneLengthM,
		CleanupTimeoutSec:        DefaultCleanupTimeoutSec,
		HistoryLength:            DefaultHistoryLength,
	}
}

// vehicleRecord is per-vehicle cross-frame bookkeeping, keyed by track ID.
type vehicleRecord struct {
	firstSeen float64
	lastSeen  float64
	lastSpeed float64
	lastLane  string

	// Open stop event. Waiting time accrues only while stopped is true.
	stopTime float64
	stopped  bool
}

// LaneTracker converts one batch of observations plus a timestamp into a
// complete per-lane state set, and maintains the cross-frame per-vehicle
// bookkeeping needed for waiting-time and cleanup.
//
// LaneTracker holds no lane states at construction: states exist only
// after the first Update call, each stamped with the update's timestamp.
// After any Update the state set contains exactly one entry per configured
// lane, including lanes with zero vehicles.
type LaneTracker struct {
	laneIDs []string
	config  TrackerConfig

	vehicles map[int64]*vehicleRecord
	current  map[string]LaneState
	history  map[string][]LaneState
}

// NewLaneTracker creates a tracker for the given lane set. The lane set is
// fixed for the tracker's lifetime; an empty set or duplicate lane IDs are
// configuration errors.
func NewLaneTracker(laneIDs []string, config TrackerConfig) (*LaneTracker, error) {
	if len(laneIDs) == 0 {
		return nil, fmt.Errorf("lane tracker requires at least one lane")
	}
	seen := make(map[string]bool, len(laneIDs))
	ids := make([]string, 0, len(laneIDs))
	for _, id := range laneIDs {
		if id == "" {
			return nil, fmt.Errorf("lane tracker: empty lane ID")
		}
		if seen[id] {
			return nil, fmt.Errorf("lane tracker: duplicate lane ID %q", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if config.HistoryLength <= 0 {
		config.HistoryLength = DefaultHistoryLength
	}

	return &LaneTracker{
		laneIDs:  ids,
		config:   config,
		vehicles: make(map[int64]*vehicleRecord),
		current:  make(map[string]LaneState),
		history:  make(map[string][]LaneState, len(ids)),
	}, nil
}

// LaneIDs returns the configured lane identity set.
func (t *LaneTracker) LaneIDs() []string {
	out := make([]string, len(t.laneIDs))
	copy(out, t.laneIDs)
	return out
}

// Update processes one observation batch at the given timestamp and
// returns the complete per-lane state set. An empty batch is valid and
// produces all-zero states for every lane.
//
// The returned map always contains exactly the configured lane set; a
// mismatch indicates an internal logic defect and is returned as an error
// rather than tolerated, since downstream aggregation assumes completeness
// unconditionally.
func (t *LaneTracker) Update(observations []Observation, now float64) (map[string]LaneState, error) {
	// Group observations by lane. Every configured lane gets a bucket so
	// empty lanes still produce states. Vehicles without a lane assignment
	// are excluded from all lane groups but still tracked for stop events.
	byLane := make(map[string][]Observation, len(t.laneIDs))
	for _, id := range t.laneIDs {
		byLane[id] = nil
	}

	for _, obs := range observations {
		rec, ok := t.vehicles[obs.TrackID]
		if !ok {
			rec = &vehicleRecord{firstSeen: now}
			t.vehicles[obs.TrackID] = rec
		}
		rec.lastSeen = now
		if obs.HasLane() {
			rec.lastLane = obs.LaneID
			if _, configured := byLane[obs.LaneID]; configured {
				byLane[obs.LaneID] = append(byLane[obs.LaneID], obs)
			}
		}
	}

	t.updateStopEvents(observations, now)

	states := make(map[string]LaneState, len(t.laneIDs))
	for _, laneID := range t.laneIDs {
		states[laneID] = t.computeLaneState(laneID, byLane[laneID], now)
	}

	if len(states) != len(t.laneIDs) {
		return nil, fmt.Errorf("incomplete lane state set: %d states for %d lanes", len(states), len(t.laneIDs))
	}

	t.current = states
	for laneID, state := range states {
		h := append(t.history[laneID], state)
		if len(h) > t.config.HistoryLength {
			h = h[len(h)-t.config.HistoryLength:]
		}
		t.history[laneID] = h
	}

	t.cleanup(observations, now)

	return states, nil
}

// updateStopEvents opens and closes stop events for every observed
// vehicle. A stop event opens when the vehicle's speed first drops below
// the stopped threshold and closes as soon as it resumes moving, so
// waiting time reflects time since the vehicle actually stopped, not time
// since it first appeared.
func (t *LaneTracker) updateStopEvents(observations []Observation, now float64) {
	for _, obs := range observations {
		rec := t.vehicles[obs.TrackID]
		if rec == nil {
			continue
		}
		speed := obs.Speed()
		if speed < t.config.StoppedSpeedThresholdMps {
			if !rec.stopped {
				rec.stopped = true
				rec.stopTime = now
			}
		} else {
			rec.stopped = false
			rec.stopTime = 0
		}
		rec.lastSpeed = speed
	}
}

// waitingTime returns how long the vehicle has been inside its open stop
// event, or 0 when it is moving.
func (t *LaneTracker) waitingTime(trackID int64, now float64) float64 {
	rec := t.vehicles[trackID]
	if rec == nil || !rec.stopped {
		return 0
	}
	return now - rec.stopTime
}

// computeLaneState builds the immutable state for a single lane.
func (t *LaneTracker) computeLaneState(laneID string, vehicles []Observation, now float64) LaneState {
	if len(vehicles) == 0 {
		return emptyLaneState(laneID, now)
	}

	var (
		distances    []float64
		speeds       []float64
		waitingTimes []float64
		stopped      int
		queueLength  float64
		queueCount   int

		hasEmergency      bool
		emergencyDistance = NoStopLineDistance
	)

	for _, v := range vehicles {
		if v.HasStopLineDistance() {
			distances = append(distances, v.DistanceToStopLine)
		}

		speed := v.Speed()
		speeds = append(speeds, speed)

		vehicleStopped := speed < t.config.StoppedSpeedThresholdMps
		if vehicleStopped {
			stopped++
			// Waiting time is measured only over vehicles with an open
			// stop event, which every stopped vehicle in this batch has.
			waitingTimes = append(waitingTimes, t.waitingTime(v.TrackID, now))
		}

		// Queue membership: within the detection zone and effectively
		// stopped. Queue length is the max distance among queued vehicles
		// regardless of gaps; a moving vehicle beyond a stopped one never
		// extends the queue.
		if v.HasStopLineDistance() && v.DistanceToStopLine <= t.config.QueueDistanceThresholdM && vehicleStopped {
			queueCount++
			if v.DistanceToStopLine > queueLength {
				queueLength = v.DistanceToStopLine
			}
		}

		// A moving emergency vehicle still sets the lane flag even though
		// it contributes nothing to queue metrics.
		if v.Emergency {
			hasEmergency = true
			if v.HasStopLineDistance() {
				if emergencyDistance == NoStopLineDistance || v.DistanceToStopLine < emergencyDistance {
					emergencyDistance = v.DistanceToStopLine
				}
			}
		}
	}

	avgSpeed := 0.0
	if len(speeds) > 0 {
		avgSpeed = stat.Mean(speeds, nil)
	}
	avgWaiting := 0.0
	if len(waitingTimes) > 0 {
		avgWaiting = stat.Mean(waitingTimes, nil)
	}

	return LaneState{
		LaneID:              laneID,
		Timestamp:           now,
		VehicleCount:        len(vehicles),
		StoppedVehicles:     stopped,
		QueueLengthM:        queueLength,
		QueueVehicleCount:   queueCount,
		Density:             float64(len(vehicles)) / t.config.LaneLengthM * 100.0,
		AvgSpeedMps:         avgSpeed,
		AvgWaitingTimeSec:   avgWaiting,
		HasEmergencyVehicle: hasEmergency,
		EmergencyDistanceM:  emergencyDistance,
		distances:           distances,
		speeds:              speeds,
	}
}

// cleanup purges bookkeeping for vehicles absent from the current batch
// for longer than the cleanup timeout, bounding memory to vehicles
// recently visible.
func (t *LaneTracker) cleanup(observations []Observation, now float64) {
	present := make(map[int64]bool, len(observations))
	for _, obs := range observations {
		present[obs.TrackID] = true
	}

	for trackID, rec := range t.vehicles {
		if present[trackID] {
			continue
		}
		if now-rec.lastSeen > t.config.CleanupTimeoutSec {
			delete(t.vehicles, trackID)
		}
	}
}

// CurrentStates returns a copy of the current per-lane state map. The map
// is empty until the first Update call.
func (t *LaneTracker) CurrentStates() map[string]LaneState {
	out := make(map[string]LaneState, len(t.current))
	for id, state := range t.current {
		out[id] = state
	}
	return out
}

// LaneState returns the current state for one lane and whether any update
// has produced it yet.
func (t *LaneTracker) LaneState(laneID string) (LaneState, bool) {
	state, ok := t.current[laneID]
	return state, ok
}

// History returns a copy of the retained state history for a lane, oldest
// first.
func (t *LaneTracker) History(laneID string) []LaneState {
	h := t.history[laneID]
	out := make([]LaneState, len(h))
	copy(out, h)
	return out
}

// TrackedVehicleCount returns the number of vehicles with live
// bookkeeping. Exposed for cleanup-bound tests and memory diagnostics.
func (t *LaneTracker) TrackedVehicleCount() int {
	return len(t.vehicles)
}

// Reset returns the tracker to its just-constructed condition: no lane
// states, no history, no vehicle bookkeeping.
func (t *LaneTracker) Reset() {
	t.vehicles = make(map[int64]*vehicleRecord)
	t.current = make(map[string]LaneState)
	t.history = make(map[string][]LaneState, len(t.laneIDs))
}

// ApproachOf extracts the approach identity from a lane ID. Lane IDs are
// named "<approach>_in_<index>" (for example "N_in_0"), so the approach is
// the segment before the first underscore. Lane IDs without an underscore
// are their own approach.
func ApproachOf(laneID string) string {
	if i := strings.IndexByte(laneID, '_'); i > 0 {
		return laneID[:i]
	}
	return laneID
}
