// Package api exposes the running engine and the episode store over HTTP
// JSON, plus HTML report rendering for recorded episodes.
package api

import (
	"fmt"
	"net/http"

	"github.com/banshee-data/signal.report/internal/httputil"
	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/report"
	"github.com/banshee-data/signal.report/internal/store"
	"github.com/banshee-data/signal.report/internal/traffic"
	"github.com/banshee-data/signal.report/internal/units"
	"github.com/banshee-data/signal.report/internal/version"
)

// EngineSource is the live view the server reads from. Implementations
// must be safe for concurrent use with the tick loop.
type EngineSource interface {
	// CurrentState returns the latest intersection snapshot; ok is false
	// before the first tick.
	CurrentState() (traffic.IntersectionState, bool)
	// EmergencyStatus returns the emergency controller's current status.
	EmergencyStatus() priority.Status
	// SignalHeads returns the current per-head signal symbol string.
	SignalHeads() string
	// EpisodeID returns the store episode the engine is recording to, or
	// empty when recording is disabled.
	EpisodeID() string
}

type Server struct {
	engine EngineSource
	db     *store.Store
}

// NewServer creates an API server. db may be nil when recording is
// disabled; episode endpoints then return 404.
func NewServer(engine EngineSource, db *store.Store) *Server {
	return &Server{
		engine: engine,
		db:     db,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/emergency", s.handleEmergency)
	mux.HandleFunc("/api/heads", s.handleHeads)
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/transitions", s.handleTransitions)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/version", s.handleVersion)
	return mux
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	state, ok := s.engine.CurrentState()
	if !ok {
		httputil.NotFound(w, "no state estimated yet")
		return
	}
	httputil.WriteJSONOK(w, state)
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.engine.EmergencyStatus())
}

func (s *Server) handleHeads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"heads":      s.engine.SignalHeads(),
		"episode_id": s.engine.EpisodeID(),
	})
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "episode recording is disabled")
		return
	}

	episodes, err := s.db.ListEpisodes()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list episodes: %v", err))
		return
	}
	if episodes == nil {
		episodes = []store.Episode{}
	}
	httputil.WriteJSONOK(w, episodes)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "episode recording is disabled")
		return
	}

	episodeID := r.URL.Query().Get("episode")
	if episodeID == "" {
		episodeID = s.engine.EpisodeID()
	}
	if episodeID == "" {
		httputil.BadRequest(w, "episode query parameter required")
		return
	}

	transitions, err := s.db.Transitions(episodeID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load transitions: %v", err))
		return
	}

	type transitionJSON struct {
		Time     float64 `json:"time"`
		From     string  `json:"from"`
		To       string  `json:"to"`
		Reason   string  `json:"reason"`
		Approach string  `json:"approach,omitempty"`
		Distance float64 `json:"distance_m"`
	}
	out := make([]transitionJSON, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, transitionJSON{
			Time:     tr.SimTime,
			From:     tr.From,
			To:       tr.To,
			Reason:   tr.Reason,
			Approach: tr.Approach,
			Distance: tr.Distance,
		})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "episode recording is disabled")
		return
	}

	episodeID := r.URL.Query().Get("episode")
	if episodeID == "" {
		episodeID = s.engine.EpisodeID()
	}
	if episodeID == "" {
		httputil.BadRequest(w, "episode query parameter required")
		return
	}

	speedUnits := r.URL.Query().Get("units")
	if speedUnits != "" && !units.IsValid(speedUnits) {
		httputil.BadRequest(w,
			fmt.Sprintf("invalid units %q, valid: %s", speedUnits, units.GetValidUnitsString()))
		return
	}

	episode, err := s.db.GetEpisode(episodeID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	snapshots, err := s.db.Snapshots(episodeID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load snapshots: %v", err))
		return
	}
	transitions, err := s.db.Transitions(episodeID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load transitions: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderEpisode(w, episode, snapshots, transitions, report.Options{SpeedUnits: speedUnits}); err != nil {
		httputil.InternalServerError(w, err.Error())
	}
}
