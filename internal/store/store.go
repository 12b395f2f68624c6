// Package store persists estimation episodes to sqlite. An episode is one
// run of the engine (live or replayed); each tick's intersection snapshot
// and each emergency controller transition is recorded against it, so runs
// can be inspected and charted after the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/traffic"
)

type Store struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	// between the tick loop and report queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Episode is one recorded run of the estimation engine.
type Episode struct {
	EpisodeID   string   `json:"episode_id"`
	StartedUnix float64  `json:"started_unix"`
	EndedUnix   *float64 `json:"ended_unix,omitempty"`
	LaneIDs     []string `json:"lane_ids"`
}

// BeginEpisode creates a new episode row and returns its generated ID.
func (s *Store) BeginEpisode(startedUnix float64, laneIDs []string) (string, error) {
	id := uuid.New().String()
	_, err := s.Exec(
		`INSERT INTO episodes (episode_id, started_unix, lane_ids) VALUES (?, ?, ?)`,
		id, startedUnix, strings.Join(laneIDs, ","),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert episode: %w", err)
	}
	return id, nil
}

// EndEpisode stamps the episode's end time. Ending an unknown episode is an
// error.
func (s *Store) EndEpisode(episodeID string, endedUnix float64) error {
	res, err := s.Exec(
		`UPDATE episodes SET ended_unix = ? WHERE episode_id = ?`,
		endedUnix, episodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to end episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no such episode: %s", episodeID)
	}
	return nil
}

// GetEpisode returns a single episode by ID.
func (s *Store) GetEpisode(episodeID string) (*Episode, error) {
	row := s.QueryRow(
		`SELECT episode_id, started_unix, ended_unix, lane_ids FROM episodes WHERE episode_id = ?`,
		episodeID,
	)
	var e Episode
	var ended sql.NullFloat64
	var lanes string
	if err := row.Scan(&e.EpisodeID, &e.StartedUnix, &ended, &lanes); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no such episode: %s", episodeID)
		}
		return nil, err
	}
	if ended.Valid {
		e.EndedUnix = &ended.Float64
	}
	if lanes != "" {
		e.LaneIDs = strings.Split(lanes, ",")
	}
	return &e, nil
}

// ListEpisodes returns all episodes, most recent first.
func (s *Store) ListEpisodes() ([]Episode, error) {
	rows, err := s.Query(
		`SELECT episode_id, started_unix, ended_unix, lane_ids FROM episodes ORDER BY started_unix DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var e Episode
		var ended sql.NullFloat64
		var lanes string
		if err := rows.Scan(&e.EpisodeID, &e.StartedUnix, &ended, &lanes); err != nil {
			return nil, err
		}
		if ended.Valid {
			e.EndedUnix = &ended.Float64
		}
		if lanes != "" {
			e.LaneIDs = strings.Split(lanes, ",")
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// SnapshotRow is the flattened form of an intersection snapshot as stored.
// LaneStates carries the full per-lane detail as JSON for offline digging;
// the scalar columns are what the report queries.
type SnapshotRow struct {
	EpisodeID         string
	SimTime           float64
	TotalVehicles     int
	TotalStopped      int
	TotalWaitingTime  float64
	MaxQueueLength    float64
	AvgSpeed          float64
	HasEmergency      bool
	EmergencyApproach string
	EmergencyDistance float64
	LaneStates        string
}

// RecordSnapshot flattens and stores one intersection state.
func (s *Store) RecordSnapshot(episodeID string, state traffic.IntersectionState) error {
	laneJSON, err := json.Marshal(state.Lanes)
	if err != nil {
		return fmt.Errorf("failed to marshal lane states: %w", err)
	}

	// Average over lanes with traffic; an all-empty tick records zero.
	var speedSum float64
	var speedLanes int
	for _, lane := range state.Lanes {
		if lane.VehicleCount > 0 {
			speedSum += lane.AvgSpeedMps
			speedLanes++
		}
	}
	avgSpeed := 0.0
	if speedLanes > 0 {
		avgSpeed = speedSum / float64(speedLanes)
	}

	_, err = s.Exec(`
		INSERT INTO snapshots (
			episode_id, sim_time, total_vehicles, total_stopped,
			total_waiting_time, max_queue_length, avg_speed,
			has_emergency, emergency_approach, emergency_distance, lane_states
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		episodeID, state.Timestamp, state.TotalVehicles, state.TotalStopped,
		state.TotalWaitingTimeSec, state.MaxQueueLengthM, avgSpeed,
		state.HasEmergency, state.EmergencyApproach, state.EmergencyDistanceM,
		string(laneJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Snapshots returns the recorded snapshots for an episode in time order.
func (s *Store) Snapshots(episodeID string) ([]SnapshotRow, error) {
	rows, err := s.Query(`
		SELECT episode_id, sim_time, total_vehicles, total_stopped,
		       total_waiting_time, max_queue_length, avg_speed,
		       has_emergency, emergency_approach, emergency_distance, lane_states
		FROM snapshots WHERE episode_id = ? ORDER BY sim_time`,
		episodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var approach sql.NullString
		if err := rows.Scan(
			&r.EpisodeID, &r.SimTime, &r.TotalVehicles, &r.TotalStopped,
			&r.TotalWaitingTime, &r.MaxQueueLength, &r.AvgSpeed,
			&r.HasEmergency, &approach, &r.EmergencyDistance, &r.LaneStates,
		); err != nil {
			return nil, err
		}
		r.EmergencyApproach = approach.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionRow is one recorded emergency controller transition.
type TransitionRow struct {
	EpisodeID string
	SimTime   float64
	From      string
	To        string
	Reason    string
	Approach  string
	Distance  float64
}

// RecordTransition stores one emergency controller transition.
func (s *Store) RecordTransition(episodeID string, tr priority.Transition) error {
	_, err := s.Exec(`
		INSERT INTO emergency_transitions (
			episode_id, sim_time, from_state, to_state, reason, approach, distance
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		episodeID, tr.Time, string(tr.From), string(tr.To), tr.Reason,
		tr.Approach, tr.DistanceM,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// Transitions returns the recorded transitions for an episode in time order.
func (s *Store) Transitions(episodeID string) ([]TransitionRow, error) {
	rows, err := s.Query(`
		SELECT episode_id, sim_time, from_state, to_state, reason, approach, distance
		FROM emergency_transitions WHERE episode_id = ? ORDER BY sim_time`,
		episodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var r TransitionRow
		var approach sql.NullString
		if err := rows.Scan(
			&r.EpisodeID, &r.SimTime, &r.From, &r.To, &r.Reason,
			&approach, &r.Distance,
		); err != nil {
			return nil, err
		}
		r.Approach = approach.String
		out = append(out, r)
	}
	return out, rows.Err()
}
