package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/traffic"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testIntersectionState(simTime float64) traffic.IntersectionState {
	return traffic.IntersectionState{
		Timestamp:           simTime,
		Lanes:               map[string]traffic.LaneState{},
		TotalVehicles:       4,
		TotalStopped:        2,
		TotalWaitingTimeSec: 11.5,
		MaxQueueLengthM:     25.0,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := newTestStore(t)

	version, dirty, err := s.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("fresh database should not be dirty")
	}
	if version == 0 {
		t.Error("expected at least one migration applied")
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	// Reopening an already-migrated database must not error.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	s2.Close()
}

func TestEpisodeLifecycle(t *testing.T) {
	s := newTestStore(t)

	lanes := []string{"N_in_0", "S_in_0"}
	id, err := s.BeginEpisode(1700000000.0, lanes)
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty episode ID")
	}

	ep, err := s.GetEpisode(id)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep.StartedUnix != 1700000000.0 {
		t.Errorf("StartedUnix = %v, want 1700000000.0", ep.StartedUnix)
	}
	if ep.EndedUnix != nil {
		t.Error("expected open episode to have nil EndedUnix")
	}
	if len(ep.LaneIDs) != 2 || ep.LaneIDs[0] != "N_in_0" || ep.LaneIDs[1] != "S_in_0" {
		t.Errorf("LaneIDs = %v, want %v", ep.LaneIDs, lanes)
	}

	if err := s.EndEpisode(id, 1700000060.0); err != nil {
		t.Fatalf("EndEpisode failed: %v", err)
	}
	ep, err = s.GetEpisode(id)
	if err != nil {
		t.Fatalf("GetEpisode after end failed: %v", err)
	}
	if ep.EndedUnix == nil || *ep.EndedUnix != 1700000060.0 {
		t.Errorf("EndedUnix = %v, want 1700000060.0", ep.EndedUnix)
	}
}

func TestEndEpisodeUnknownID(t *testing.T) {
	s := newTestStore(t)

	if err := s.EndEpisode("no-such-episode", 1.0); err == nil {
		t.Error("expected error ending unknown episode")
	}
}

func TestGetEpisodeUnknownID(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetEpisode("no-such-episode"); err == nil {
		t.Error("expected error for unknown episode")
	}
}

func TestListEpisodesOrder(t *testing.T) {
	s := newTestStore(t)

	first, err := s.BeginEpisode(100.0, []string{"N_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}
	second, err := s.BeginEpisode(200.0, []string{"N_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}

	episodes, err := s.ListEpisodes()
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}
	if episodes[0].EpisodeID != second || episodes[1].EpisodeID != first {
		t.Error("expected episodes ordered most recent first")
	}
}

func TestRecordAndQuerySnapshots(t *testing.T) {
	s := newTestStore(t)

	id, err := s.BeginEpisode(0.0, []string{"N_in_0", "E_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}

	state := testIntersectionState(2.0)
	state.Lanes = map[string]traffic.LaneState{
		"N_in_0": {LaneID: "N_in_0", Timestamp: 2.0, VehicleCount: 3, AvgSpeedMps: 4.0},
		"E_in_0": {LaneID: "E_in_0", Timestamp: 2.0, VehicleCount: 1, AvgSpeedMps: 8.0},
	}
	state.HasEmergency = true
	state.EmergencyApproach = "E"
	state.EmergencyDistanceM = 45.0

	if err := s.RecordSnapshot(id, state); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if err := s.RecordSnapshot(id, testIntersectionState(4.0)); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	rows, err := s.Snapshots(id)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(rows))
	}
	if rows[0].SimTime != 2.0 || rows[1].SimTime != 4.0 {
		t.Errorf("expected snapshots in time order, got %v then %v", rows[0].SimTime, rows[1].SimTime)
	}

	got := rows[0]
	if got.TotalVehicles != 4 || got.TotalStopped != 2 {
		t.Errorf("totals = %d/%d, want 4/2", got.TotalVehicles, got.TotalStopped)
	}
	if got.TotalWaitingTime != 11.5 {
		t.Errorf("TotalWaitingTime = %v, want 11.5", got.TotalWaitingTime)
	}
	if !got.HasEmergency || got.EmergencyApproach != "E" || got.EmergencyDistance != 45.0 {
		t.Errorf("emergency fields = %v/%q/%v", got.HasEmergency, got.EmergencyApproach, got.EmergencyDistance)
	}
	// Mean speed over lanes carrying traffic: (4.0 + 8.0) / 2.
	if got.AvgSpeed != 6.0 {
		t.Errorf("AvgSpeed = %v, want 6.0", got.AvgSpeed)
	}

	var lanes map[string]traffic.LaneState
	if err := json.Unmarshal([]byte(got.LaneStates), &lanes); err != nil {
		t.Fatalf("lane_states JSON invalid: %v", err)
	}
	if lanes["N_in_0"].VehicleCount != 3 {
		t.Errorf("round-tripped lane vehicle count = %d, want 3", lanes["N_in_0"].VehicleCount)
	}
}

func TestSnapshotAvgSpeedSkipsEmptyLanes(t *testing.T) {
	s := newTestStore(t)

	id, err := s.BeginEpisode(0.0, []string{"N_in_0", "S_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}

	state := testIntersectionState(1.0)
	state.Lanes = map[string]traffic.LaneState{
		"N_in_0": {LaneID: "N_in_0", VehicleCount: 2, AvgSpeedMps: 10.0},
		"S_in_0": {LaneID: "S_in_0", VehicleCount: 0, AvgSpeedMps: 0.0},
	}
	if err := s.RecordSnapshot(id, state); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	rows, err := s.Snapshots(id)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if rows[0].AvgSpeed != 10.0 {
		t.Errorf("AvgSpeed = %v, want 10.0 (empty lane excluded)", rows[0].AvgSpeed)
	}
}

func TestRecordAndQueryTransitions(t *testing.T) {
	s := newTestStore(t)

	id, err := s.BeginEpisode(0.0, []string{"N_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}

	transitions := []priority.Transition{
		{Time: 1.0, From: priority.StateNormal, To: priority.StateDetected, Reason: "emergency vehicle detected", Approach: "N", DistanceM: 95.0},
		{Time: 3.0, From: priority.StateDetected, To: priority.StatePreempting, Reason: "within preemption range", Approach: "N", DistanceM: 75.0},
	}
	for _, tr := range transitions {
		if err := s.RecordTransition(id, tr); err != nil {
			t.Fatalf("RecordTransition failed: %v", err)
		}
	}

	rows, err := s.Transitions(id)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(rows))
	}
	if rows[0].From != string(priority.StateNormal) || rows[0].To != string(priority.StateDetected) {
		t.Errorf("first transition = %s -> %s", rows[0].From, rows[0].To)
	}
	if rows[1].SimTime != 3.0 || rows[1].Approach != "N" || rows[1].Distance != 75.0 {
		t.Errorf("second transition row = %+v", rows[1])
	}
}

func TestSnapshotsIsolatedPerEpisode(t *testing.T) {
	s := newTestStore(t)

	a, err := s.BeginEpisode(0.0, []string{"N_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}
	b, err := s.BeginEpisode(10.0, []string{"N_in_0"})
	if err != nil {
		t.Fatalf("BeginEpisode failed: %v", err)
	}

	if err := s.RecordSnapshot(a, testIntersectionState(1.0)); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if err := s.RecordSnapshot(b, testIntersectionState(11.0)); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}

	rowsA, err := s.Snapshots(a)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(rowsA) != 1 || rowsA[0].SimTime != 1.0 {
		t.Errorf("episode A rows = %+v, want single row at t=1.0", rowsA)
	}
}
