package traffic

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ApproachMetrics aggregates the lanes sharing one approach into the
// intersection.
type ApproachMetrics struct {
	TotalVehicles     int     `json:"total_vehicles"`
	StoppedVehicles   int     `json:"stopped_vehicles"`
	TotalQueueLengthM float64 `json:"total_queue_length_m"`
	AvgDensity        float64 `json:"avg_density"`
	AvgWaitingTimeSec float64 `json:"avg_waiting_time_sec"`
	HasEmergency      bool    `json:"has_emergency"`
}

// IntersectionState is the complete intersection traffic state at one
// timestamp: the output of state estimation and the only input to signal
// control. Like LaneState it is an immutable value, superseded wholesale
// each update.
//
// Lanes always contains exactly the configured lane set, and every lane
// state carries the same timestamp as the intersection state: aggregates
// for time T are computed only from lane states stamped T.
type IntersectionState struct {
	Timestamp float64 `json:"timestamp"`

	Lanes      map[string]LaneState       `json:"lanes"`
	Approaches map[string]ApproachMetrics `json:"approaches"`

	TotalVehicles       int     `json:"total_vehicles"`
	TotalStopped        int     `json:"total_stopped"`
	TotalWaitingTimeSec float64 `json:"total_waiting_time_sec"`
	MaxQueueLengthM     float64 `json:"max_queue_length_m"`

	// Emergency status: the nearest emergency vehicle across all lanes.
	// EmergencyDistanceM is NoStopLineDistance when unknown.
	HasEmergency       bool    `json:"has_emergency"`
	EmergencyApproach  string  `json:"emergency_approach,omitempty"`
	EmergencyDistanceM float64 `json:"emergency_distance_m"`
}

// EstimatorConfig holds configuration for the full estimation pipeline.
type EstimatorConfig struct {
	Tracker         TrackerConfig
	EnableSmoothing bool
}

// DefaultEstimatorConfig returns the default pipeline configuration.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Tracker:         DefaultTrackerConfig(),
		EnableSmoothing: true,
	}
}

// Estimator is the complete traffic state estimation pipeline:
//
//	observations -> LaneTracker -> raw lane states -> Smoother -> IntersectionState
//
// It produces temporally stable state estimates for the signal
// controllers. Single-threaded by design: one Update per control tick, in
// timestamp order.
type Estimator struct {
	tracker    *LaneTracker
	smoother   *Smoother
	smoothing  bool
	laneIDs    []string
	approaches []string
}

// NewEstimator creates an estimator for the given lane set.
func NewEstimator(laneIDs []string, config EstimatorConfig) (*Estimator, error) {
	tracker, err := NewLaneTracker(laneIDs, config.Tracker)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var approaches []string
	for _, id := range tracker.LaneIDs() {
		a := ApproachOf(id)
		if !seen[a] {
			seen[a] = true
			approaches = append(approaches, a)
		}
	}
	sort.Strings(approaches)

	return &Estimator{
		tracker:    tracker,
		smoother:   NewSmoother(),
		smoothing:  config.EnableSmoothing,
		laneIDs:    tracker.LaneIDs(),
		approaches: approaches,
	}, nil
}

// LaneIDs returns the configured lane identity set.
func (e *Estimator) LaneIDs() []string {
	out := make([]string, len(e.laneIDs))
	copy(out, e.laneIDs)
	return out
}

// Approaches returns the approach identities derived from the lane set.
func (e *Estimator) Approaches() []string {
	out := make([]string, len(e.approaches))
	copy(out, e.approaches)
	return out
}

// Update runs one estimation tick: lane tracking, smoothing and
// aggregation into a complete IntersectionState. An empty observation
// batch is valid and produces a full zero-valued state set.
func (e *Estimator) Update(observations []Observation, now float64) (IntersectionState, error) {
	raw, err := e.tracker.Update(observations, now)
	if err != nil {
		return IntersectionState{}, err
	}

	lanes := make(map[string]LaneState, len(raw))
	for laneID, state := range raw {
		if e.smoothing {
			lanes[laneID] = e.smoother.Apply(state)
		} else {
			lanes[laneID] = state
		}
	}

	return e.aggregate(lanes, now), nil
}

// aggregate folds the per-lane state set into the intersection state.
func (e *Estimator) aggregate(lanes map[string]LaneState, now float64) IntersectionState {
	state := IntersectionState{
		Timestamp:          now,
		Lanes:              lanes,
		Approaches:         make(map[string]ApproachMetrics, len(e.approaches)),
		EmergencyDistanceM: NoStopLineDistance,
	}

	for _, approach := range e.approaches {
		state.Approaches[approach] = e.approachMetrics(approach, lanes)
	}

	// Intersection-wide totals are exact sums over the lane set; total
	// waiting time weights each lane's mean by its stopped count.
	for _, laneID := range e.laneIDs {
		lane := lanes[laneID]
		state.TotalVehicles += lane.VehicleCount
		state.TotalStopped += lane.StoppedVehicles
		state.TotalWaitingTimeSec += lane.AvgWaitingTimeSec * float64(lane.StoppedVehicles)
		if lane.QueueLengthM > state.MaxQueueLengthM {
			state.MaxQueueLengthM = lane.QueueLengthM
		}
	}

	// Emergency selection: closest wins across all flagged lanes. Lanes
	// flagged without a usable distance still raise HasEmergency; they
	// only supply the approach when no lane has a distance.
	fallbackApproach := ""
	for _, laneID := range e.laneIDs {
		lane := lanes[laneID]
		if !lane.HasEmergencyVehicle {
			continue
		}
		state.HasEmergency = true
		if fallbackApproach == "" {
			fallbackApproach = ApproachOf(laneID)
		}
		if lane.EmergencyDistanceM == NoStopLineDistance {
			continue
		}
		if state.EmergencyDistanceM == NoStopLineDistance || lane.EmergencyDistanceM < state.EmergencyDistanceM {
			state.EmergencyDistanceM = lane.EmergencyDistanceM
			state.EmergencyApproach = ApproachOf(laneID)
		}
	}
	if state.HasEmergency && state.EmergencyApproach == "" {
		state.EmergencyApproach = fallbackApproach
	}

	return state
}

// approachMetrics aggregates the lanes of one approach: counts summed,
// density averaged, waiting time weighted by stopped count.
func (e *Estimator) approachMetrics(approach string, lanes map[string]LaneState) ApproachMetrics {
	var m ApproachMetrics
	var densities []float64
	var weightedWaiting float64

	for _, laneID := range e.laneIDs {
		if ApproachOf(laneID) != approach {
			continue
		}
		lane := lanes[laneID]
		m.TotalVehicles += lane.VehicleCount
		m.StoppedVehicles += lane.StoppedVehicles
		m.TotalQueueLengthM += lane.QueueLengthM
		densities = append(densities, lane.Density)
		weightedWaiting += lane.AvgWaitingTimeSec * float64(lane.StoppedVehicles)
		if lane.HasEmergencyVehicle {
			m.HasEmergency = true
		}
	}

	if len(densities) > 0 {
		m.AvgDensity = stat.Mean(densities, nil)
	}
	if m.StoppedVehicles > 0 {
		m.AvgWaitingTimeSec = weightedWaiting / float64(m.StoppedVehicles)
	}
	return m
}

// Tracker exposes the underlying lane tracker for diagnostics.
func (e *Estimator) Tracker() *LaneTracker {
	return e.tracker
}

// Reset returns the whole pipeline to its just-constructed condition for a
// new episode: tracker bookkeeping, lane history and smoothing state are
// all cleared.
func (e *Estimator) Reset() {
	e.tracker.Reset()
	e.smoother.Reset()
}
