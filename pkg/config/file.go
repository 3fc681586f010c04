package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/instrument-dsl/pica/pkg/tempcontrol"
)

// Defaults used when a field is absent from the config file.
const (
	DefaultDataDir             = "/var/lib/pica/data"
	DefaultPollIntervalSeconds = 2

	DefaultLakeshoreAddress     = 12
	DefaultSourceMeterAddress   = 4
	DefaultNanovoltAddress      = 7
	DefaultCurrentSourceAddress = 13
	DefaultElectrometerAddress  = 27
	DefaultLCRMeterAddress      = 17
	DefaultLockinAddress        = 8

	DefaultRampTolerance      = 1.0
	DefaultStabilityTolerance = 0.05
	DefaultStabilityChecks    = 5
	DefaultMaxSafeTemp        = 400.0
)

// RawFileConfig is the JSON schema of the config file. All fields are
// pointers so we can tell "absent" from "zero".
type RawFileConfig struct {
	Adapter             *string  `json:"adapter,omitempty"`
	DataDir             *string  `json:"dataDir,omitempty"`
	PollIntervalSeconds *int     `json:"pollIntervalSeconds,omitempty"`
	LakeshoreAddress    *int     `json:"lakeshoreAddress,omitempty"`
	SourceMeterAddress  *int     `json:"sourceMeterAddress,omitempty"`
	NanovoltAddress     *int     `json:"nanovoltAddress,omitempty"`
	CurrentSourceAddr   *int     `json:"currentSourceAddress,omitempty"`
	ElectrometerAddress *int     `json:"electrometerAddress,omitempty"`
	LCRMeterAddress     *int     `json:"lcrMeterAddress,omitempty"`
	LockinAddress       *int     `json:"lockinAddress,omitempty"`
	RampTolerance       *float64 `json:"rampTolerance,omitempty"`
	StabilityTolerance  *float64 `json:"stabilityTolerance,omitempty"`
	StabilityChecks     *int     `json:"stabilityChecks,omitempty"`
	MaxSafeTemp         *float64 `json:"maxSafeTemp,omitempty"`
	AllowNonRootAccess  *bool    `json:"allowNonRootAccess,omitempty"`
	Cron                *string  `json:"cron,omitempty"`
}

// NewRawFileConfigFromConfig snapshots the effective configuration into the
// file schema, for serving over the API.
func NewRawFileConfigFromConfig(c Config) *RawFileConfig {
	adapter := c.Adapter()
	dataDir := c.DataDir()
	pollSecs := int(c.PollInterval() / time.Second)
	lakeshore := c.LakeshoreAddress()
	sourceMeter := c.SourceMeterAddress()
	nanovolt := c.NanovoltAddress()
	currentSource := c.CurrentSourceAddress()
	electrometer := c.ElectrometerAddress()
	lcr := c.LCRMeterAddress()
	lockin := c.LockinAddress()
	tol := c.Tolerances()
	nonRoot := c.AllowNonRootAccess()
	cron := c.Cron()

	return &RawFileConfig{
		Adapter:             &adapter,
		DataDir:             &dataDir,
		PollIntervalSeconds: &pollSecs,
		LakeshoreAddress:    &lakeshore,
		SourceMeterAddress:  &sourceMeter,
		NanovoltAddress:     &nanovolt,
		CurrentSourceAddr:   &currentSource,
		ElectrometerAddress: &electrometer,
		LCRMeterAddress:     &lcr,
		LockinAddress:       &lockin,
		RampTolerance:       &tol.Ramp,
		StabilityTolerance:  &tol.Stability,
		StabilityChecks:     &tol.StabilityChecks,
		MaxSafeTemp:         &tol.MaxSafeTemp,
		AllowNonRootAccess:  &nonRoot,
		Cron:                &cron,
	}
}

// FileConfig is a Config backed by a JSON file on disk.
type FileConfig struct {
	raw RawFileConfig
	mu  sync.RWMutex

	// path to the config file.
	path string
}

var _ Config = (*FileConfig)(nil)

func NewFileConfig(path string) *FileConfig {
	return &FileConfig{path: path}
}

func orDefaultString(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func orDefaultInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefaultFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (f *FileConfig) Adapter() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultString(f.raw.Adapter, "")
}

func (f *FileConfig) DataDir() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultString(f.raw.DataDir, DefaultDataDir)
}

func (f *FileConfig) PollInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	secs := orDefaultInt(f.raw.PollIntervalSeconds, DefaultPollIntervalSeconds)
	if secs < 1 {
		secs = 1
	}

	return time.Duration(secs) * time.Second
}

func (f *FileConfig) LakeshoreAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.LakeshoreAddress, DefaultLakeshoreAddress)
}

func (f *FileConfig) SourceMeterAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.SourceMeterAddress, DefaultSourceMeterAddress)
}

func (f *FileConfig) NanovoltAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.NanovoltAddress, DefaultNanovoltAddress)
}

func (f *FileConfig) CurrentSourceAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.CurrentSourceAddr, DefaultCurrentSourceAddress)
}

func (f *FileConfig) ElectrometerAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.ElectrometerAddress, DefaultElectrometerAddress)
}

func (f *FileConfig) LCRMeterAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.LCRMeterAddress, DefaultLCRMeterAddress)
}

func (f *FileConfig) LockinAddress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultInt(f.raw.LockinAddress, DefaultLockinAddress)
}

func (f *FileConfig) Tolerances() tempcontrol.Tolerances {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return tempcontrol.Tolerances{
		Ramp:            orDefaultFloat(f.raw.RampTolerance, DefaultRampTolerance),
		Stability:       orDefaultFloat(f.raw.StabilityTolerance, DefaultStabilityTolerance),
		StabilityChecks: orDefaultInt(f.raw.StabilityChecks, DefaultStabilityChecks),
		MaxSafeTemp:     orDefaultFloat(f.raw.MaxSafeTemp, DefaultMaxSafeTemp),
	}
}

func (f *FileConfig) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.raw.AllowNonRootAccess == nil {
		return false
	}

	return *f.raw.AllowNonRootAccess
}

func (f *FileConfig) Cron() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return orDefaultString(f.raw.Cron, "")
}

func (f *FileConfig) SetAdapter(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw.Adapter = &v
}

func (f *FileConfig) SetDataDir(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw.DataDir = &v
}

func (f *FileConfig) SetPollInterval(v time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secs := int(v / time.Second)
	f.raw.PollIntervalSeconds = &secs
}

func (f *FileConfig) SetMaxSafeTemp(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw.MaxSafeTemp = &v
}

func (f *FileConfig) SetAllowNonRootAccess(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw.AllowNonRootAccess = &v
}

func (f *FileConfig) SetCron(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw.Cron = &v
}

// LogrusFields returns the effective configuration for logging.
func (f *FileConfig) LogrusFields() logrus.Fields {
	tol := f.Tolerances()

	return logrus.Fields{
		"adapter":              f.Adapter(),
		"dataDir":              f.DataDir(),
		"pollInterval":         f.PollInterval().String(),
		"lakeshoreAddress":     f.LakeshoreAddress(),
		"sourceMeterAddress":   f.SourceMeterAddress(),
		"nanovoltAddress":      f.NanovoltAddress(),
		"currentSourceAddress": f.CurrentSourceAddress(),
		"electrometerAddress":  f.ElectrometerAddress(),
		"lcrMeterAddress":      f.LCRMeterAddress(),
		"lockinAddress":        f.LockinAddress(),
		"rampTolerance":        tol.Ramp,
		"stabilityTolerance":   tol.Stability,
		"stabilityChecks":      tol.StabilityChecks,
		"maxSafeTemp":          tol.MaxSafeTemp,
		"allowNonRootAccess":   f.AllowNonRootAccess(),
		"cron":                 f.Cron(),
	}
}

func (f *FileConfig) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", f.path)
	}

	// An empty file is a valid empty config.
	if len(b) == 0 {
		f.raw = RawFileConfig{}
		return nil
	}

	raw := RawFileConfig{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrapf(err, "failed to unmarshal config file %s", f.path)
	}
	f.raw = raw

	return nil
}

func (f *FileConfig) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, err := json.MarshalIndent(f.raw, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(f.path, b, 0644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", f.path)
	}

	return nil
}
