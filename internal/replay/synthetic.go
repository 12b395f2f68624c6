package replay

import (
	"sort"

	"github.com/banshee-data/signal.report/internal/traffic"
)

// SyntheticConfig controls the generated scenario. The generator is fully
// deterministic so tests and demos can assert on exact frames.
type SyntheticConfig struct {
	LaneIDs         []string
	DurationSec     float64
	StepSec         float64
	VehiclesPerLane int
	ApproachMps     float64 // cruise speed while approaching

	// Emergency run. When EmergencyLane is set, one emergency vehicle
	// enters that lane at EmergencyStartSec and drives through at
	// EmergencyMps without stopping.
	EmergencyLane     string
	EmergencyStartSec float64
	EmergencyMps      float64
}

// DefaultSyntheticConfig returns a four-approach scenario with a queue
// build-up on every lane and one emergency run from the east.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		LaneIDs:           []string{"N_in_0", "S_in_0", "E_in_0", "W_in_0"},
		DurationSec:       120.0,
		StepSec:           1.0,
		VehiclesPerLane:   3,
		ApproachMps:       10.0,
		EmergencyLane:     "E_in_0",
		EmergencyStartSec: 60.0,
		EmergencyMps:      15.0,
	}
}

// approach unit vectors, pointing from the approach toward the stop line.
var approachHeading = map[string][2]float64{
	"N": {0, -1},
	"S": {0, 1},
	"E": {-1, 0},
	"W": {1, 0},
}

// synthVehicle is one scripted vehicle: it enters at a start distance,
// cruises toward the stop line, and either joins the queue at its slot or
// drives through.
type synthVehicle struct {
	trackID   int64
	laneID    string
	startSec  float64
	startDist float64
	cruiseMps float64
	queueSlot float64 // stop-line distance at which the vehicle halts; <0 drives through
	emergency bool
}

func (v synthVehicle) at(t float64) (dist, speed float64, present bool) {
	if t < v.startSec {
		return 0, 0, false
	}
	dist = v.startDist - v.cruiseMps*(t-v.startSec)
	speed = v.cruiseMps
	if v.queueSlot >= 0 && dist <= v.queueSlot {
		return v.queueSlot, 0, true
	}
	// Past the stop line and out of the intersection.
	if dist < -10.0 {
		return 0, 0, false
	}
	return dist, speed, true
}

// Synthetic generates a deterministic frame sequence for the configured
// scenario.
func Synthetic(cfg SyntheticConfig) []Frame {
	lanes := append([]string(nil), cfg.LaneIDs...)
	sort.Strings(lanes)

	var vehicles []synthVehicle
	nextID := int64(1)
	for _, lane := range lanes {
		for i := 0; i < cfg.VehiclesPerLane; i++ {
			// Staggered entries, 7 m headway in the queue.
			vehicles = append(vehicles, synthVehicle{
				trackID:   nextID,
				laneID:    lane,
				startSec:  float64(i) * 4.0,
				startDist: 90.0 + float64(i)*10.0,
				cruiseMps: cfg.ApproachMps,
				queueSlot: 2.0 + float64(i)*7.0,
			})
			nextID++
		}
	}
	if cfg.EmergencyLane != "" {
		vehicles = append(vehicles, synthVehicle{
			trackID:   nextID,
			laneID:    cfg.EmergencyLane,
			startSec:  cfg.EmergencyStartSec,
			startDist: 110.0,
			cruiseMps: cfg.EmergencyMps,
			queueSlot: -1.0,
			emergency: true,
		})
	}

	var frames []Frame
	for t := 0.0; t <= cfg.DurationSec; t += cfg.StepSec {
		frame := Frame{Time: t, Observations: []traffic.Observation{}}
		for _, v := range vehicles {
			dist, speed, present := v.at(t)
			if !present {
				continue
			}
			heading := approachHeading[traffic.ApproachOf(v.laneID)]
			class := "car"
			if v.emergency {
				class = "ambulance"
			}
			obs := traffic.Observation{
				TrackID:            v.trackID,
				Class:              class,
				Emergency:          v.emergency,
				Confidence:         0.95,
				PositionX:          -heading[0] * dist,
				PositionY:          -heading[1] * dist,
				VelocityX:          heading[0] * speed,
				VelocityY:          heading[1] * speed,
				LaneID:             v.laneID,
				DistanceToStopLine: dist,
			}
			if dist < 0 {
				// Inside the intersection box: no lane, no stop-line distance.
				obs.LaneID = ""
				obs.DistanceToStopLine = traffic.NoStopLineDistance
			}
			frame.Observations = append(frame.Observations, obs)
		}
		frames = append(frames, frame)
	}
	return frames
}
