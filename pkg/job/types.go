// Package job defines the measurement jobs the daemon can run: their
// parameters, the columns they log, and sweep point generation.
package job

import (
	pkgerrors "github.com/pkg/errors"
)

// Kind identifies a measurement job type.
type Kind string

const (
	// KindIVSweep sources current through the sample (2400 or 6221+2182) and
	// records the bipolar I-V loop.
	KindIVSweep Kind = "iv"
	// KindHighResIV sweeps the 6517B voltage source and records current and
	// resistance.
	KindHighResIV Kind = "hr-iv"
	// KindDeltaRT runs 6221/2182A delta mode against a Lakeshore-controlled
	// temperature: resistance versus temperature.
	KindDeltaRT Kind = "delta-rt"
	// KindPyro logs pyroelectric current from the 6517B while the Lakeshore
	// ramps.
	KindPyro Kind = "pyro"
	// KindTempRamp ramps and monitors temperature only.
	KindTempRamp Kind = "ramp"
	// KindCVSweep sweeps DC bias on the E4980A and records Cp and D.
	KindCVSweep Kind = "cv"
	// KindLockinLog periodically snapshots the SR830 outputs.
	KindLockinLog Kind = "lockin"
)

// Kinds lists every job kind, in the order they appear in the CLI.
func Kinds() []Kind {
	return []Kind{KindIVSweep, KindHighResIV, KindDeltaRT, KindPyro, KindTempRamp, KindCVSweep, KindLockinLog}
}

// NeedsTempControl reports whether the job runs the active temperature
// control sequence before and during measurement.
func (k Kind) NeedsTempControl() bool {
	switch k {
	case KindDeltaRT, KindPyro, KindTempRamp:
		return true
	}
	return false
}

// Params carries every parameter a job can take. Only the fields relevant to
// the kind are consulted; Validate rejects the combinations that make no
// sense.
type Params struct {
	Kind       Kind   `json:"kind"`
	SampleName string `json:"sampleName"`

	// Current sweeps (iv, delta-rt source level).
	MaxCurrent  float64 `json:"maxCurrent,omitempty"`  // A
	CurrentStep float64 `json:"currentStep,omitempty"` // A
	// UseNanovolt switches the iv sweep from the 2400 to the 6221 sourcing
	// with the 2182 reading voltage, for low-noise samples.
	UseNanovolt bool `json:"useNanovolt,omitempty"`

	// Voltage sweeps (hr-iv, cv bias).
	StartVoltage float64 `json:"startVoltage,omitempty"` // V
	StopVoltage  float64 `json:"stopVoltage,omitempty"`  // V
	VoltageSteps int     `json:"voltageSteps,omitempty"`

	Compliance    float64 `json:"compliance,omitempty"`    // V for current sources, A for voltage sources
	SettleSeconds float64 `json:"settleSeconds,omitempty"` // dwell after each set point

	// Temperature control (delta-rt, pyro, ramp).
	Setpoint    float64 `json:"setpoint,omitempty"` // K
	RampRate    float64 `json:"rampRate,omitempty"` // K/min
	HeaterRange string  `json:"heaterRange,omitempty"`

	// LCR (cv).
	Frequency float64 `json:"frequency,omitempty"` // Hz
	ACLevel   float64 `json:"acLevel,omitempty"`   // V rms

	// Lock-in (lockin).
	SnapRTheta bool `json:"snapRTheta,omitempty"`
}

// Validate checks the parameters for the job's kind.
func (p *Params) Validate() error {
	if p.SampleName == "" {
		return pkgerrors.New("sample name is required")
	}

	switch p.Kind {
	case KindIVSweep:
		if p.MaxCurrent <= 0 || p.CurrentStep <= 0 {
			return pkgerrors.New("iv sweep needs positive max current and step")
		}
		if p.CurrentStep > p.MaxCurrent {
			return pkgerrors.New("current step must not exceed max current")
		}
	case KindHighResIV, KindCVSweep:
		if p.VoltageSteps < 2 {
			return pkgerrors.New("voltage sweep needs at least 2 steps")
		}
		if p.StartVoltage == p.StopVoltage {
			return pkgerrors.New("voltage sweep start and stop must differ")
		}
		if p.Kind == KindCVSweep && p.Frequency <= 0 {
			return pkgerrors.New("cv sweep needs a positive measurement frequency")
		}
	case KindDeltaRT:
		if p.MaxCurrent <= 0 {
			return pkgerrors.New("delta-rt needs a positive source current")
		}
	case KindPyro, KindLockinLog:
		// Poll-only jobs; nothing beyond temperature params below.
	case KindTempRamp:
		if p.RampRate <= 0 {
			return pkgerrors.New("ramp rate must be positive")
		}
	default:
		return pkgerrors.Errorf("unknown job kind %q", p.Kind)
	}

	if p.Kind.NeedsTempControl() {
		if p.Setpoint <= 0 {
			return pkgerrors.New("temperature setpoint must be positive kelvin")
		}
	}

	return nil
}

// Columns returns the data-file column headers for the kind, in write order.
// The first two columns are always timestamp and elapsed seconds.
func (k Kind) Columns() []string {
	base := []string{"Timestamp", "Elapsed (s)"}
	switch k {
	case KindIVSweep:
		return append(base, "Set Current (A)", "Voltage (V)", "Resistance (Ohm)")
	case KindHighResIV:
		return append(base, "Applied Voltage (V)", "Current (A)", "Resistance (Ohm)")
	case KindDeltaRT:
		return append(base, "Temperature (K)", "Voltage (V)", "Resistance (Ohm)")
	case KindPyro:
		return append(base, "Temperature (K)", "Current (A)")
	case KindTempRamp:
		return append(base, "Temperature (K)", "Heater (%)")
	case KindCVSweep:
		return append(base, "Bias (V)", "Cp (F)", "D")
	case KindLockinLog:
		return append(base, "X/R (V)", "Y/Theta")
	}
	return base
}
