package traffic

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestEstimator(t *testing.T, smoothing bool) *Estimator {
	t.Helper()
	config := DefaultEstimatorConfig()
	config.EnableSmoothing = smoothing
	est, err := NewEstimator(testLanes, config)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	return est
}

func TestNewEstimator_DerivesApproaches(t *testing.T) {
	est := newTestEstimator(t, true)

	want := []string{"E", "N", "S", "W"}
	if diff := cmp.Diff(want, est.Approaches()); diff != "" {
		t.Errorf("approaches mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimator_EmptyBatchProducesCompleteState(t *testing.T) {
	est := newTestEstimator(t, true)

	state, err := est.Update(nil, 0.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(state.Lanes) != len(testLanes) {
		t.Errorf("lane map size = %d, want %d", len(state.Lanes), len(testLanes))
	}
	if len(state.Approaches) != 4 {
		t.Errorf("approach map size = %d, want 4", len(state.Approaches))
	}
	if state.TotalVehicles != 0 || state.TotalStopped != 0 || state.MaxQueueLengthM != 0 {
		t.Errorf("expected zero totals, got %+v", state)
	}
	if state.HasEmergency {
		t.Error("expected no emergency")
	}
	if state.EmergencyDistanceM != NoStopLineDistance {
		t.Errorf("emergency distance = %v, want sentinel", state.EmergencyDistanceM)
	}
}

func TestEstimator_Totals(t *testing.T) {
	est := newTestEstimator(t, false)

	batch := []Observation{
		vehicle(1, "N_in_0", 5, 0),
		vehicle(2, "N_in_0", 15, 0),
		vehicle(3, "N_in_1", 22, 0),
		vehicle(4, "S_in_0", 40, 9.0),
		vehicle(5, "E_in_0", 8, 0),
	}
	state, err := est.Update(batch, 1.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if state.TotalVehicles != 5 {
		t.Errorf("total vehicles = %d, want 5", state.TotalVehicles)
	}
	if state.TotalStopped != 4 {
		t.Errorf("total stopped = %d, want 4", state.TotalStopped)
	}
	if state.MaxQueueLengthM != 22.0 {
		t.Errorf("max queue length = %v, want 22.0", state.MaxQueueLengthM)
	}

	// Per-approach sums.
	n := state.Approaches["N"]
	if n.TotalVehicles != 3 || n.StoppedVehicles != 3 {
		t.Errorf("approach N = %+v, want 3 vehicles, 3 stopped", n)
	}
	if n.TotalQueueLengthM != 15.0+22.0 {
		t.Errorf("approach N queue sum = %v, want 37.0", n.TotalQueueLengthM)
	}
	s := state.Approaches["S"]
	if s.TotalVehicles != 1 || s.StoppedVehicles != 0 {
		t.Errorf("approach S = %+v, want 1 vehicle, 0 stopped", s)
	}

	// Cross-check: lane sums equal intersection totals.
	sumVehicles := 0
	for _, lane := range state.Lanes {
		sumVehicles += lane.VehicleCount
	}
	if sumVehicles != state.TotalVehicles {
		t.Errorf("lane sum %d != total %d", sumVehicles, state.TotalVehicles)
	}
}

func TestEstimator_TotalWaitingTime(t *testing.T) {
	est := newTestEstimator(t, false)

	// Two vehicles stop at t=0; by t=6 each has waited 6 s.
	batch := []Observation{
		vehicle(1, "N_in_0", 5, 0),
		vehicle(2, "N_in_0", 12, 0),
	}
	if _, err := est.Update(batch, 0.0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	state, err := est.Update(batch, 6.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// total waiting = mean waiting (6.0) x stopped count (2).
	if state.TotalWaitingTimeSec != 12.0 {
		t.Errorf("total waiting time = %v, want 12.0", state.TotalWaitingTimeSec)
	}
}

func TestEstimator_EmergencyNearestWins(t *testing.T) {
	est := newTestEstimator(t, false)

	batch := []Observation{
		emergencyVehicle(1, "N_in_0", 90, 14.0),
		emergencyVehicle(2, "E_in_0", 45, 14.0),
	}
	state, err := est.Update(batch, 1.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if !state.HasEmergency {
		t.Fatal("expected emergency")
	}
	if state.EmergencyApproach != "E" {
		t.Errorf("emergency approach = %q, want E (nearest)", state.EmergencyApproach)
	}
	if state.EmergencyDistanceM != 45.0 {
		t.Errorf("emergency distance = %v, want 45.0", state.EmergencyDistanceM)
	}
	if !state.Approaches["E"].HasEmergency || !state.Approaches["N"].HasEmergency {
		t.Error("both approaches should flag emergency presence")
	}
	if state.Approaches["S"].HasEmergency {
		t.Error("approach S should not flag emergency")
	}
}

func TestEstimator_TimestampsConsistent(t *testing.T) {
	est := newTestEstimator(t, true)

	state, err := est.Update([]Observation{vehicle(1, "N_in_0", 10, 0)}, 7.25)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.Timestamp != 7.25 {
		t.Errorf("timestamp = %v, want 7.25", state.Timestamp)
	}
	for laneID, lane := range state.Lanes {
		if lane.Timestamp != 7.25 {
			t.Errorf("lane %s timestamp = %v, want 7.25", laneID, lane.Timestamp)
		}
	}
}

func TestEstimator_SmoothingDampensStep(t *testing.T) {
	est := newTestEstimator(t, true)

	// First frame seeds the filters; identity on first sample.
	batch := []Observation{
		vehicle(1, "N_in_0", 20, 0),
	}
	first, err := est.Update(batch, 0.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := first.Lanes["N_in_0"].QueueLengthM; got != 20.0 {
		t.Errorf("first frame queue = %v, want raw 20.0", got)
	}

	// Queue clears instantly in the raw signal; smoothed value lags.
	second, err := est.Update(nil, 1.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := second.Lanes["N_in_0"].QueueLengthM
	want := 0.7 * 20.0 // alpha 0.3 toward raw 0
	if got <= 0 || got >= 20.0 {
		t.Errorf("smoothed queue = %v, want strictly between 0 and 20", got)
	}
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("smoothed queue = %v, want %v", got, want)
	}
}

func TestEstimator_Validate(t *testing.T) {
	est := newTestEstimator(t, false)

	state, err := est.Update([]Observation{vehicle(1, "N_in_0", 10, 0)}, 1.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if violations := est.Validate(state); len(violations) != 0 {
		t.Errorf("expected clean state, got violations: %v", violations)
	}

	// Tampered totals are reported, not panicked on.
	bad := state
	bad.TotalVehicles = 99
	violations := est.Validate(bad)
	if len(violations) == 0 {
		t.Fatal("expected violations for mismatched totals")
	}

	// A missing lane is a completeness violation.
	lanes := make(map[string]LaneState)
	for id, lane := range state.Lanes {
		if id != "S_in_0" {
			lanes[id] = lane
		}
	}
	incomplete := state
	incomplete.Lanes = lanes
	if violations := est.Validate(incomplete); len(violations) == 0 {
		t.Error("expected violation for missing lane")
	}
}

func TestEstimator_ResetClearsSmoothingAndTracking(t *testing.T) {
	est := newTestEstimator(t, true)

	batch := []Observation{vehicle(1, "N_in_0", 20, 0)}
	if _, err := est.Update(batch, 0.0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	est.Reset()

	if got := est.Tracker().TrackedVehicleCount(); got != 0 {
		t.Errorf("tracked vehicles after reset = %d, want 0", got)
	}

	// Smoothing history is gone: the next frame re-seeds on the raw value.
	state, err := est.Update(nil, 10.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := state.Lanes["N_in_0"].QueueLengthM; got != 0 {
		t.Errorf("queue after reset = %v, want 0 (no stale smoothing)", got)
	}
}

func TestEstimator_SnapshotSupersededWholesale(t *testing.T) {
	est := newTestEstimator(t, false)

	first, err := est.Update([]Observation{vehicle(1, "N_in_0", 10, 0)}, 1.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	second, err := est.Update(nil, 2.0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// The first snapshot is unchanged by the second update.
	if first.Lanes["N_in_0"].VehicleCount != 1 {
		t.Error("earlier snapshot was mutated by a later update")
	}
	if second.Lanes["N_in_0"].VehicleCount != 0 {
		t.Error("later snapshot did not supersede")
	}

	want := emptyLaneState("S_in_0", 2.0)
	if diff := cmp.Diff(want, second.Lanes["S_in_0"], cmp.AllowUnexported(LaneState{})); diff != "" {
		t.Errorf("empty lane state mismatch (-want +got):\n%s", diff)
	}
}
