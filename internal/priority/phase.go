// Package priority implements emergency vehicle signal preemption as a
// deterministic five-state machine over intersection traffic states.
package priority

// Phase identifies a signal phase at the intersection.
type Phase int

const (
	// PhaseNSThrough serves North-South through traffic.
	PhaseNSThrough Phase = iota
	// PhaseEWThrough serves East-West through traffic.
	PhaseEWThrough
	// PhaseEmergencyNS clears the North-South corridor for an emergency
	// vehicle.
	PhaseEmergencyNS
	// PhaseEmergencyEW clears the East-West corridor for an emergency
	// vehicle.
	PhaseEmergencyEW
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseNSThrough:
		return "ns_through"
	case PhaseEWThrough:
		return "ew_through"
	case PhaseEmergencyNS:
		return "emergency_ns"
	case PhaseEmergencyEW:
		return "emergency_ew"
	}
	return "unknown"
}

// PhaseConfig describes one signal phase: which approaches receive green,
// its timing envelope, and the per-head symbol strings for the signal
// actuation collaborator. The head string has one symbol per physically
// controlled signal head, ordered N(3), E(3), S(3), W(3).
type PhaseConfig struct {
	Phase            Phase
	GreenApproaches  []string
	MinDurationSec   float64
	MaxDurationSec   float64
	YellowSec        float64
	AllRedSec        float64
	GreenHeads       string
	YellowHeads      string
}

// AllRedHeads is the all-red clearance head string.
const AllRedHeads = "rrrrrrrrrrrr"

var phaseTable = map[Phase]PhaseConfig{
	PhaseNSThrough: {
		Phase:           PhaseNSThrough,
		GreenApproaches: []string{"N", "S"},
		MinDurationSec:  10.0,
		MaxDurationSec:  60.0,
		YellowSec:       3.0,
		AllRedSec:       2.0,
		GreenHeads:      "GGGrrrGGGrrr",
		YellowHeads:     "yyyrrryyyrrr",
	},
	PhaseEWThrough: {
		Phase:           PhaseEWThrough,
		GreenApproaches: []string{"E", "W"},
		MinDurationSec:  10.0,
		MaxDurationSec:  60.0,
		YellowSec:       3.0,
		AllRedSec:       2.0,
		GreenHeads:      "rrrGGGrrrGGG",
		YellowHeads:     "rrryyyrrryyy",
	},
	PhaseEmergencyNS: {
		Phase:           PhaseEmergencyNS,
		GreenApproaches: []string{"N", "S"},
		MinDurationSec:  15.0,
		MaxDurationSec:  120.0,
		YellowSec:       3.0,
		AllRedSec:       2.0,
		GreenHeads:      "GGGrrrGGGrrr",
		YellowHeads:     "yyyrrryyyrrr",
	},
	PhaseEmergencyEW: {
		Phase:           PhaseEmergencyEW,
		GreenApproaches: []string{"E", "W"},
		MinDurationSec:  15.0,
		MaxDurationSec:  120.0,
		YellowSec:       3.0,
		AllRedSec:       2.0,
		GreenHeads:      "rrrGGGrrrGGG",
		YellowHeads:     "rrryyyrrryyy",
	},
}

// PhaseConfigFor returns the configuration for a phase.
func PhaseConfigFor(p Phase) PhaseConfig {
	return phaseTable[p]
}

// EmergencyPhaseFor maps an approach to the conflict-free emergency phase
// that clears its corridor: North/South emergencies clear the N-S
// corridor, everything else the E-W corridor.
func EmergencyPhaseFor(approach string) Phase {
	switch approach {
	case "N", "S":
		return PhaseEmergencyNS
	default:
		return PhaseEmergencyEW
	}
}
