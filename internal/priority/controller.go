package priority

import (
	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/traffic"
)

// State is the emergency preemption state. The machine is safety-critical:
// exactly five states, no probabilistic behaviour.
type State string

const (
	// StateNormal passes control through to the normal controller.
	StateNormal State = "normal"
	// StateDetected is the debounce window after an emergency vehicle is
	// first seen within detection range; no override yet.
	StateDetected State = "detected"
	// StatePreempting forces the conflict-free phase favouring the
	// emergency approach.
	StatePreempting State = "preempting"
	// StateClearing holds the forced phase after the vehicle passes, to
	// flush conflicting traffic.
	StateClearing State = "clearing"
	// StateCooldown blocks re-triggering while the intersection
	// stabilises.
	StateCooldown State = "cooldown"
)

// Config holds the controller's timing and distance parameters. The
// defaults are the conservative frozen values; they exist as configuration
// only so tuning files can widen them for unusual geometries.
type Config struct {
	DetectionThresholdM  float64 // Start monitoring at this distance
	PreemptionThresholdM float64 // Force the phase change at this distance
	ClearingDistanceM    float64 // Vehicle has passed at this distance
	ClearanceTimeSec     float64 // Hold after passing
	CooldownTimeSec      float64 // Ignore new emergencies after clearing
}

// DefaultConfig returns the frozen default timing parameters.
func DefaultConfig() Config {
	return Config{
		DetectionThresholdM:  100.0,
		PreemptionThresholdM: 80.0,
		ClearingDistanceM:    5.0,
		ClearanceTimeSec:     5.0,
		CooldownTimeSec:      10.0,
	}
}

// Transition records one state machine transition for logging and
// persistence.
type Transition struct {
	Time      float64 `json:"time"`
	From      State   `json:"from"`
	To        State   `json:"to"`
	Reason    string  `json:"reason"`
	Approach  string  `json:"approach,omitempty"`
	DistanceM float64 `json:"distance_m"`
}

// Status is a point-in-time view of the controller for monitoring.
type Status struct {
	State     State   `json:"state"`
	Active    bool    `json:"active"`
	Approach  string  `json:"approach,omitempty"`
	DistanceM float64 `json:"distance_m"`
	Phase     string  `json:"phase,omitempty"`
}

// Controller is the emergency vehicle priority controller. It consumes
// successive intersection states plus the current time, advances the state
// machine on Update, and answers Command without side effects, so the
// integration point may query it repeatedly between updates.
//
// While in cooldown, new emergency detections are ignored entirely to
// prevent oscillation. Multiple simultaneous emergency vehicles are not
// tracked individually; the nearest one drives all transitions. Phase
// forcing is immediate at the preemption transition: no yellow or all-red
// interlude is modelled, a deliberate simplification.
type Controller struct {
	config Config

	state      State
	entryTime  float64
	approach   string
	distance   float64
	phase      Phase
	phaseValid bool

	// onTransition, when set, observes every state transition.
	onTransition func(Transition)
}

// NewController creates a controller in the normal (pass-through) state.
func NewController(config Config) *Controller {
	return &Controller{
		config:   config,
		state:    StateNormal,
		distance: traffic.NoStopLineDistance,
	}
}

// SetTransitionHook installs a callback invoked on every state transition,
// after it is logged. Pass nil to remove.
func (c *Controller) SetTransitionHook(hook func(Transition)) {
	c.onTransition = hook
}

// State returns the current machine state.
func (c *Controller) State() State {
	return c.state
}

// Active reports whether the controller is currently overriding normal
// control. Active states: preempting, clearing.
func (c *Controller) Active() bool {
	return c.state == StatePreempting || c.state == StateClearing
}

// Command returns the current control decision: whether override is
// active and, if so, the phase to force. It performs no state mutation and
// is idempotent between updates.
func (c *Controller) Command() (active bool, phase Phase) {
	if c.Active() && c.phaseValid {
		return true, c.phase
	}
	return false, PhaseNSThrough
}

// Status returns monitoring information about the machine.
func (c *Controller) Status() Status {
	s := Status{
		State:     c.state,
		Active:    c.Active(),
		Approach:  c.approach,
		DistanceM: c.distance,
	}
	if c.phaseValid {
		s.Phase = c.phase.String()
	}
	return s
}

// Reset returns the controller unconditionally to the normal state, for
// the start of a new episode.
func (c *Controller) Reset() {
	c.state = StateNormal
	c.entryTime = 0
	c.approach = ""
	c.distance = traffic.NoStopLineDistance
	c.phaseValid = false
}

// Update advances the state machine one tick given the current
// intersection state and time. It never fails on a syntactically valid
// state: degraded input (no emergency, unknown distances) simply keeps or
// returns the machine toward normal operation.
func (c *Controller) Update(ts traffic.IntersectionState, now float64) {
	hasEmergency, approach, distance := c.detectEmergency(ts)

	switch c.state {
	case StateNormal:
		c.updateNormal(hasEmergency, approach, distance, now)
	case StateDetected:
		c.updateDetected(hasEmergency, approach, distance, now)
	case StatePreempting:
		c.updatePreempting(hasEmergency, distance, now)
	case StateClearing:
		c.updateClearing(now)
	case StateCooldown:
		c.updateCooldown(now)
	}
}

// detectEmergency finds the nearest emergency vehicle across all lanes.
// Only vehicles with a positive stop-line distance count; a flagged lane
// without a usable distance is treated as no detection.
func (c *Controller) detectEmergency(ts traffic.IntersectionState) (bool, string, float64) {
	if !ts.HasEmergency {
		return false, "", traffic.NoStopLineDistance
	}

	closestApproach := ""
	closestDistance := traffic.NoStopLineDistance

	for laneID, lane := range ts.Lanes {
		if !lane.HasEmergencyVehicle || lane.EmergencyDistanceM <= 0 {
			continue
		}
		if closestDistance == traffic.NoStopLineDistance || lane.EmergencyDistanceM < closestDistance {
			closestDistance = lane.EmergencyDistanceM
			closestApproach = traffic.ApproachOf(laneID)
		}
	}

	if closestApproach == "" {
		return false, "", traffic.NoStopLineDistance
	}
	return true, closestApproach, closestDistance
}

func (c *Controller) updateNormal(hasEmergency bool, approach string, distance, now float64) {
	if !hasEmergency || distance > c.config.DetectionThresholdM {
		return
	}
	c.approach = approach
	c.distance = distance
	c.transition(StateDetected, now, "emergency detected", approach, distance)
}

func (c *Controller) updateDetected(hasEmergency bool, approach string, distance, now float64) {
	if !hasEmergency {
		// False alarm: the detection did not survive the debounce window.
		c.approach = ""
		c.distance = traffic.NoStopLineDistance
		c.transition(StateNormal, now, "false alarm, emergency gone", "", traffic.NoStopLineDistance)
		return
	}

	c.approach = approach
	c.distance = distance

	if distance <= c.config.PreemptionThresholdM {
		c.phase = EmergencyPhaseFor(approach)
		c.phaseValid = true
		c.transition(StatePreempting, now, "within preemption threshold", approach, distance)
	}
}

func (c *Controller) updatePreempting(hasEmergency bool, distance, now float64) {
	if !hasEmergency {
		// Vehicle left detection range or passed through: complete safely
		// via clearing rather than snapping back to normal.
		c.transition(StateClearing, now, "emergency vehicle left detection range", c.approach, c.distance)
		return
	}

	c.distance = distance

	if distance <= c.config.ClearingDistanceM {
		c.transition(StateClearing, now, "vehicle cleared stop line", c.approach, distance)
	}
}

func (c *Controller) updateClearing(now float64) {
	if now-c.entryTime >= c.config.ClearanceTimeSec {
		c.transition(StateCooldown, now, "clearance complete", c.approach, c.distance)
	}
}

func (c *Controller) updateCooldown(now float64) {
	// Any new emergency seen during cooldown is ignored entirely.
	if now-c.entryTime >= c.config.CooldownTimeSec {
		c.approach = ""
		c.distance = traffic.NoStopLineDistance
		c.phaseValid = false
		c.transition(StateNormal, now, "cooldown complete", "", traffic.NoStopLineDistance)
	}
}

// transition moves the machine to a new state, logging the change and
// notifying the transition hook.
func (c *Controller) transition(to State, now float64, reason, approach string, distance float64) {
	from := c.state
	c.state = to
	c.entryTime = now

	monitoring.Logf("emergency priority: %s -> %s (%s, approach=%s distance=%.1fm t=%.1f)",
		from, to, reason, approach, distance, now)

	if c.onTransition != nil {
		c.onTransition(Transition{
			Time:      now,
			From:      from,
			To:        to,
			Reason:    reason,
			Approach:  approach,
			DistanceM: distance,
		})
	}
}
