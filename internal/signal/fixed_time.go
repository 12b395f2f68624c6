// Package signal arbitrates between normal signal timing and emergency
// preemption, producing the per-head symbol string consumed by the signal
// actuation collaborator.
package signal

import "github.com/banshee-data/signal.report/internal/priority"

// transitionStage tracks where a phase change is within its safety
// sequence.
type transitionStage int

const (
	stageGreen transitionStage = iota
	stageYellow
	stageAllRed
)

// FixedTimeConfig holds green splits for the fixed-time cycle.
type FixedTimeConfig struct {
	NSGreenSec float64
	EWGreenSec float64
}

// DefaultFixedTimeConfig returns an even 30/30 split.
func DefaultFixedTimeConfig() FixedTimeConfig {
	return FixedTimeConfig{NSGreenSec: 30.0, EWGreenSec: 30.0}
}

// FixedTimeController is the baseline normal controller: a predetermined
// two-phase NS/EW cycle with yellow and all-red clearance between greens.
// It ignores traffic state entirely.
type FixedTimeController struct {
	config FixedTimeConfig

	phase          priority.Phase
	stage          transitionStage
	stageStart     float64
	nextTransition float64
	targetPhase    priority.Phase
}

// NewFixedTimeController creates a controller starting in the NS-through
// green.
func NewFixedTimeController(config FixedTimeConfig) *FixedTimeController {
	return &FixedTimeController{
		config:         config,
		phase:          priority.PhaseNSThrough,
		nextTransition: config.NSGreenSec,
	}
}

// Phase returns the currently served phase.
func (f *FixedTimeController) Phase() priority.Phase {
	return f.phase
}

// Update advances the cycle to the given time and returns the head string
// to display.
func (f *FixedTimeController) Update(now float64) string {
	config := priority.PhaseConfigFor(f.phase)

	switch f.stage {
	case stageGreen:
		if now >= f.nextTransition {
			f.stage = stageYellow
			f.stageStart = now
			if f.phase == priority.PhaseNSThrough {
				f.targetPhase = priority.PhaseEWThrough
			} else {
				f.targetPhase = priority.PhaseNSThrough
			}
			return config.YellowHeads
		}
		return config.GreenHeads

	case stageYellow:
		if now-f.stageStart >= config.YellowSec {
			f.stage = stageAllRed
			f.stageStart = now
			return priority.AllRedHeads
		}
		return config.YellowHeads

	case stageAllRed:
		if now-f.stageStart >= config.AllRedSec {
			f.phase = f.targetPhase
			f.stage = stageGreen
			if f.phase == priority.PhaseNSThrough {
				f.nextTransition = now + f.config.NSGreenSec
			} else {
				f.nextTransition = now + f.config.EWGreenSec
			}
			return priority.PhaseConfigFor(f.phase).GreenHeads
		}
		return priority.AllRedHeads
	}

	return config.GreenHeads
}

// Reset returns the cycle to its initial NS green.
func (f *FixedTimeController) Reset() {
	f.phase = priority.PhaseNSThrough
	f.stage = stageGreen
	f.stageStart = 0
	f.nextTransition = f.config.NSGreenSec
}
