package main

import (
	"fmt"
	"sync"

	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/priority"
	lights "github.com/banshee-data/signal.report/internal/signal"
	"github.com/banshee-data/signal.report/internal/store"
	"github.com/banshee-data/signal.report/internal/traffic"
)

// Engine drives one intersection: per tick it feeds a perception frame
// through the estimator, advances the signal controller, and records the
// results. Tick runs on a single goroutine; the read side (the API server)
// takes the lock.
type Engine struct {
	mu sync.RWMutex

	estimator  *traffic.Estimator
	controller *lights.Controller
	db         *store.Store
	episodeID  string

	state    traffic.IntersectionState
	hasState bool
	heads    string
}

// NewEngine wires the estimation pipeline to the signal controller. db may
// be nil to disable recording.
func NewEngine(estimator *traffic.Estimator, controller *lights.Controller, db *store.Store, episodeID string) *Engine {
	e := &Engine{
		estimator:  estimator,
		controller: controller,
		db:         db,
		episodeID:  episodeID,
		heads:      priority.AllRedHeads,
	}

	if db != nil {
		controller.Emergency().SetTransitionHook(func(tr priority.Transition) {
			if err := db.RecordTransition(episodeID, tr); err != nil {
				monitoring.Logf("engine: failed to record transition: %v", err)
			}
		})
	}

	return e
}

// Tick processes one perception frame at the given sim time.
func (e *Engine) Tick(observations []traffic.Observation, now float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.estimator.Update(observations, now)
	if err != nil {
		return fmt.Errorf("estimation failed at t=%v: %w", now, err)
	}

	e.state = state
	e.hasState = true
	e.heads = e.controller.Update(state, now)

	if e.db != nil {
		if err := e.db.RecordSnapshot(e.episodeID, state); err != nil {
			return fmt.Errorf("failed to record snapshot: %w", err)
		}
	}
	return nil
}

// CurrentState returns the latest intersection snapshot; ok is false
// before the first tick.
func (e *Engine) CurrentState() (traffic.IntersectionState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.hasState
}

// EmergencyStatus returns the emergency controller's current status.
func (e *Engine) EmergencyStatus() priority.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.controller.Emergency().Status()
}

// SignalHeads returns the head string from the last tick, all-red before
// the first.
func (e *Engine) SignalHeads() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.heads
}

// EpisodeID returns the episode being recorded, or empty when recording
// is disabled.
func (e *Engine) EpisodeID() string {
	if e.db == nil {
		return ""
	}
	return e.episodeID
}
