package signal

import (
	"testing"

	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/traffic"
)

func quietState(timestamp float64) traffic.IntersectionState {
	return traffic.IntersectionState{
		Timestamp:          timestamp,
		Lanes:              map[string]traffic.LaneState{},
		EmergencyDistanceM: traffic.NoStopLineDistance,
	}
}

func emergencyState(timestamp float64, laneID string, distanceM float64) traffic.IntersectionState {
	return traffic.IntersectionState{
		Timestamp: timestamp,
		Lanes: map[string]traffic.LaneState{
			laneID: {
				LaneID:              laneID,
				Timestamp:           timestamp,
				VehicleCount:        1,
				HasEmergencyVehicle: true,
				EmergencyDistanceM:  distanceM,
			},
		},
		HasEmergency:       true,
		EmergencyApproach:  traffic.ApproachOf(laneID),
		EmergencyDistanceM: distanceM,
	}
}

func TestFixedTimeController_Cycle(t *testing.T) {
	f := NewFixedTimeController(DefaultFixedTimeConfig())

	// NS green until t=30.
	if got := f.Update(0.0); got != "GGGrrrGGGrrr" {
		t.Errorf("t=0 heads = %q, want NS green", got)
	}
	if got := f.Update(29.0); got != "GGGrrrGGGrrr" {
		t.Errorf("t=29 heads = %q, want NS green", got)
	}

	// Yellow for 3 s, then all-red for 2 s, then EW green.
	if got := f.Update(30.0); got != "yyyrrryyyrrr" {
		t.Errorf("t=30 heads = %q, want NS yellow", got)
	}
	if got := f.Update(32.0); got != "yyyrrryyyrrr" {
		t.Errorf("t=32 heads = %q, want NS yellow", got)
	}
	if got := f.Update(33.0); got != priority.AllRedHeads {
		t.Errorf("t=33 heads = %q, want all red", got)
	}
	if got := f.Update(35.0); got != "rrrGGGrrrGGG" {
		t.Errorf("t=35 heads = %q, want EW green", got)
	}
	if f.Phase() != priority.PhaseEWThrough {
		t.Errorf("phase = %v, want EW through", f.Phase())
	}

	// EW green runs its own split before cycling back.
	if got := f.Update(60.0); got != "rrrGGGrrrGGG" {
		t.Errorf("t=60 heads = %q, want EW green", got)
	}
	if got := f.Update(65.0); got != "rrryyyrrryyy" {
		t.Errorf("t=65 heads = %q, want EW yellow", got)
	}
}

func TestFixedTimeController_Reset(t *testing.T) {
	f := NewFixedTimeController(DefaultFixedTimeConfig())
	f.Update(30.0)
	f.Update(33.0)
	f.Update(35.0)

	f.Reset()
	if f.Phase() != priority.PhaseNSThrough {
		t.Errorf("phase after reset = %v, want NS through", f.Phase())
	}
	if got := f.Update(0.0); got != "GGGrrrGGGrrr" {
		t.Errorf("heads after reset = %q, want NS green", got)
	}
}

func TestController_EmergencyOverride(t *testing.T) {
	c := NewController(
		NewFixedTimeController(DefaultFixedTimeConfig()),
		priority.NewController(priority.DefaultConfig()),
	)

	// Normal operation: fixed-time output.
	if got := c.Update(quietState(0.0), 0.0); got != "GGGrrrGGGrrr" {
		t.Errorf("t=0 heads = %q, want NS green", got)
	}
	if c.EmergencyMode() {
		t.Error("should not be in emergency mode")
	}

	// Emergency on the east approach walks through detection into
	// preemption; the EW corridor is forced regardless of the cycle.
	c.Update(emergencyState(1.0, "E_in_0", 95.0), 1.0)
	got := c.Update(emergencyState(2.0, "E_in_0", 75.0), 2.0)
	if got != "rrrGGGrrrGGG" {
		t.Errorf("preempting heads = %q, want EW green", got)
	}
	if !c.EmergencyMode() {
		t.Error("expected emergency mode")
	}

	// Vehicle passes; clearing holds the corridor.
	got = c.Update(emergencyState(3.0, "E_in_0", 2.0), 3.0)
	if got != "rrrGGGrrrGGG" {
		t.Errorf("clearing heads = %q, want EW green held", got)
	}

	// After clearance the normal cycle resumes.
	got = c.Update(quietState(9.0), 9.0)
	if c.EmergencyMode() {
		t.Error("expected return to normal mode")
	}
	if got != "GGGrrrGGGrrr" {
		t.Errorf("post-clearing heads = %q, want NS green", got)
	}
}

func TestController_Reset(t *testing.T) {
	c := NewController(
		NewFixedTimeController(DefaultFixedTimeConfig()),
		priority.NewController(priority.DefaultConfig()),
	)

	c.Update(emergencyState(1.0, "N_in_0", 90.0), 1.0)
	c.Update(emergencyState(2.0, "N_in_0", 70.0), 2.0)
	if !c.EmergencyMode() {
		t.Fatal("expected emergency mode before reset")
	}

	c.Reset()
	if c.EmergencyMode() {
		t.Error("emergency mode should clear on reset")
	}
	if c.Emergency().State() != priority.StateNormal {
		t.Errorf("emergency state after reset = %v, want normal", c.Emergency().State())
	}
}
