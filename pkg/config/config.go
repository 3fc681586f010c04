package config

import (
	"time"

	"github.com/instrument-dsl/pica/pkg/tempcontrol"
)

// Config is the daemon configuration. Accessors never fail; unset values
// fall back to defaults.
type Config interface {
	// Adapter is the GPIB adapter endpoint: a serial device path or a
	// host:port for TCP bridges. Empty means auto-discover on USB.
	Adapter() string
	// DataDir is where measurement data files are written.
	DataDir() string
	// PollInterval is the acquisition loop period.
	PollInterval() time.Duration

	// GPIB primary addresses of the instruments on the bus.
	LakeshoreAddress() int     // Lakeshore 350
	SourceMeterAddress() int   // Keithley 2400
	NanovoltAddress() int      // Keithley 2182
	CurrentSourceAddress() int // Keithley 6221
	ElectrometerAddress() int  // Keithley 6517B
	LCRMeterAddress() int      // Keysight E4980A
	LockinAddress() int        // SRS SR830

	// Tolerances gates the temperature control state machine.
	Tolerances() tempcontrol.Tolerances

	AllowNonRootAccess() bool
	// Cron is the schedule expression for scheduled jobs; empty disables.
	Cron() string

	SetAdapter(string)
	SetDataDir(string)
	SetPollInterval(time.Duration)
	SetMaxSafeTemp(float64)
	SetAllowNonRootAccess(bool)
	SetCron(string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
