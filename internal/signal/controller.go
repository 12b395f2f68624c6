package signal

import (
	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/traffic"
)

// Controller integrates normal signal timing with emergency priority.
// The emergency controller is a circuit breaker: while it reports active,
// its forced phase drives the heads and the normal controller is ignored
// entirely; otherwise the normal controller runs as if nothing happened.
type Controller struct {
	normal    *FixedTimeController
	emergency *priority.Controller

	inEmergencyMode bool
}

// NewController wires the fixed-time baseline to an emergency priority
// controller.
func NewController(normal *FixedTimeController, emergency *priority.Controller) *Controller {
	return &Controller{
		normal:    normal,
		emergency: emergency,
	}
}

// Emergency exposes the emergency controller for status queries and
// transition hooks.
func (c *Controller) Emergency() *priority.Controller {
	return c.emergency
}

// Update advances both controllers one tick and returns the head string
// to actuate.
func (c *Controller) Update(ts traffic.IntersectionState, now float64) string {
	c.emergency.Update(ts, now)

	active, phase := c.emergency.Command()
	if active {
		if !c.inEmergencyMode {
			monitoring.Logf("signal: switching to emergency mode (phase %s)", phase)
			c.inEmergencyMode = true
		}
		return priority.PhaseConfigFor(phase).GreenHeads
	}

	if c.inEmergencyMode {
		monitoring.Logf("signal: returning to normal mode")
		c.inEmergencyMode = false
	}
	return c.normal.Update(now)
}

// EmergencyMode reports whether the last update was driven by the
// emergency controller.
func (c *Controller) EmergencyMode() bool {
	return c.inEmergencyMode
}

// Reset returns both controllers to their initial states for a new
// episode.
func (c *Controller) Reset() {
	c.normal.Reset()
	c.emergency.Reset()
	c.inEmergencyMode = false
}
