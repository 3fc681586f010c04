package tempcontrol

import "time"

// Phase is one step of the temperature-controlled measurement sequence.
type Phase string

const (
	PhaseIdle        Phase = "Idle"
	PhaseRamping     Phase = "Ramping"
	PhaseStabilizing Phase = "Stabilizing"
	PhaseMeasuring   Phase = "Measuring"
	PhaseDone        Phase = "Done"
	PhaseError       Phase = "Error"
)

// Active reports whether the phase belongs to a job that is still holding
// the instruments.
func (p Phase) Active() bool {
	switch p {
	case PhaseRamping, PhaseStabilizing, PhaseMeasuring:
		return true
	}
	return false
}

// Tolerances are the fixed numeric gates of the state machine.
type Tolerances struct {
	// Ramp is how close to the setpoint the temperature must be, in kelvin,
	// before the stabilizing phase starts.
	Ramp float64 `json:"ramp"`
	// Stability is the maximum max-min spread, in kelvin, across the last
	// StabilityChecks readings for the temperature to count as stable.
	Stability float64 `json:"stability"`
	// StabilityChecks is the sliding-window length.
	StabilityChecks int `json:"stabilityChecks"`
	// MaxSafeTemp forces an error and heater-off if any reading exceeds it.
	MaxSafeTemp float64 `json:"maxSafeTemp"`
}

// State is the runtime state of a temperature-controlled job, persisted to
// disk so a daemon restart does not silently resume heating.
type State struct {
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
	Paused    bool      `json:"paused"`
	// When paused, the timestamp is kept so elapsed-time bookkeeping can be
	// adjusted on resume.
	PauseStartedAt time.Time `json:"pauseStartedAt"`

	Setpoint    float64    `json:"setpoint"`    // K
	RampRate    float64    `json:"rampRate"`    // K/min
	HeaterRange string     `json:"heaterRange"` // off, low, medium, high
	Tolerances  Tolerances `json:"tolerances"`

	LastError string `json:"lastError"`
}
