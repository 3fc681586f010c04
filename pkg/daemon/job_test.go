package daemon

import (
	"fmt"
	"testing"
	"time"

	"github.com/instrument-dsl/pica/pkg/config"
	"github.com/instrument-dsl/pica/pkg/instrument"
	"github.com/instrument-dsl/pica/pkg/job"
	"github.com/instrument-dsl/pica/pkg/tempcontrol"
)

// mockConf implements the subset of Config behavior the job machinery needs.
type mockConf struct {
	dataDir string
	tol     tempcontrol.Tolerances
}

func (m *mockConf) Adapter() string                    { return "" }
func (m *mockConf) DataDir() string                    { return m.dataDir }
func (m *mockConf) PollInterval() time.Duration        { return 2 * time.Second }
func (m *mockConf) LakeshoreAddress() int              { return 12 }
func (m *mockConf) SourceMeterAddress() int            { return 4 }
func (m *mockConf) NanovoltAddress() int               { return 7 }
func (m *mockConf) CurrentSourceAddress() int          { return 13 }
func (m *mockConf) ElectrometerAddress() int           { return 27 }
func (m *mockConf) LCRMeterAddress() int               { return 17 }
func (m *mockConf) LockinAddress() int                 { return 8 }
func (m *mockConf) Tolerances() tempcontrol.Tolerances { return m.tol }
func (m *mockConf) AllowNonRootAccess() bool           { return false }
func (m *mockConf) Cron() string                       { return "" }
func (m *mockConf) SetAdapter(string)                  {}
func (m *mockConf) SetDataDir(string)                  {}
func (m *mockConf) SetPollInterval(time.Duration)      {}
func (m *mockConf) SetMaxSafeTemp(float64)             {}
func (m *mockConf) SetAllowNonRootAccess(bool)         {}
func (m *mockConf) SetCron(string)                     {}
func (m *mockConf) Load() error                        { return nil }
func (m *mockConf) Save() error                        { return nil }

var _ config.Config = (*mockConf)(nil)

// fakeCryostat drives the temperature seams.
type fakeCryostat struct {
	temp      float64
	heaterPct float64
	heaterOn  bool
	rampCalls int
}

func (f *fakeCryostat) inject() {
	readTemperature = func() (float64, error) { return f.temp, nil }
	readHeaterOutput = func() (float64, error) { return f.heaterPct, nil }
	configureRamp = func(_, _ float64, _ instrument.HeaterRange) error {
		f.heaterOn = true
		f.rampCalls++
		return nil
	}
	heaterOff = func() error { f.heaterOn = false; return nil }
}

func resetJobState(t *testing.T) {
	t.Helper()
	conf = &mockConf{
		dataDir: t.TempDir(),
		tol: tempcontrol.Tolerances{
			Ramp:            1.0,
			Stability:       0.05,
			StabilityChecks: 3,
			MaxSafeTemp:     400,
		},
	}
	jobState = &tempcontrol.State{Phase: tempcontrol.PhaseIdle}
	current = nil
	jobStatePath = ""
	haveTemperature = false
}

// neutralize swaps the hardware-bound closures for fakes so the state machine
// can be walked without a bus.
func neutralize(rows *int) {
	current.prepare = func() error { return nil }
	current.shutdown = func() error { return nil }
	current.measure = func(tempK float64) ([]string, bool, error) {
		if rows != nil {
			*rows++
		}
		return []string{fmt.Sprintf("%.4f", tempK), "0.0", "0.0"}, false, nil
	}
}

func TestDeltaRTFlow(t *testing.T) {
	resetJobState(t)
	cryo := &fakeCryostat{temp: 50}
	cryo.inject()

	err := startJob(job.Params{
		Kind:        job.KindDeltaRT,
		SampleName:  "NbSe2-a",
		MaxCurrent:  1e-3,
		Compliance:  10,
		Setpoint:    100,
		RampRate:    3,
		HeaterRange: "medium",
	})
	if err != nil {
		t.Fatalf("startJob failed: %v", err)
	}
	if jobState.Phase != tempcontrol.PhaseRamping {
		t.Fatalf("expected ramping phase, got %s", jobState.Phase)
	}
	if cryo.rampCalls != 1 || !cryo.heaterOn {
		t.Fatal("expected the ramp to be configured on start")
	}

	rows := 0
	neutralize(&rows)

	// Far from the setpoint: stay ramping.
	advanceJobWithinLoop(false)
	if jobState.Phase != tempcontrol.PhaseRamping {
		t.Fatalf("expected ramping at 50 K, got %s", jobState.Phase)
	}

	// Within ramp tolerance: start stabilizing.
	cryo.temp = 99.5
	advanceJobWithinLoop(false)
	if jobState.Phase != tempcontrol.PhaseStabilizing {
		t.Fatalf("expected stabilizing at 99.5 K, got %s", jobState.Phase)
	}

	// Fill the window with a tight spread.
	for _, temp := range []float64{99.51, 99.52, 99.53} {
		cryo.temp = temp
		advanceJobWithinLoop(false)
	}
	if jobState.Phase != tempcontrol.PhaseMeasuring {
		t.Fatalf("expected measuring after a stable window, got %s", jobState.Phase)
	}

	// Each pass in measuring logs one row.
	advanceJobWithinLoop(false)
	advanceJobWithinLoop(false)
	if rows != 2 {
		t.Fatalf("expected 2 measured rows, got %d", rows)
	}
	if current.pointsDone != 2 {
		t.Fatalf("expected pointsDone 2, got %d", current.pointsDone)
	}

	if err := stopJob(); err != nil {
		t.Fatalf("stopJob failed: %v", err)
	}
	if jobState.Phase != tempcontrol.PhaseIdle {
		t.Fatalf("expected idle after stop, got %s", jobState.Phase)
	}
	if cryo.heaterOn {
		t.Fatal("expected the heater off after stop")
	}
}

func TestStabilityWindowSlides(t *testing.T) {
	resetJobState(t)
	cryo := &fakeCryostat{temp: 99.8}
	cryo.inject()

	if err := startJob(job.Params{
		Kind:        job.KindDeltaRT,
		SampleName:  "s",
		MaxCurrent:  1e-3,
		Setpoint:    100,
		HeaterRange: "low",
	}); err != nil {
		t.Fatalf("startJob failed: %v", err)
	}
	neutralize(nil)

	advanceJobWithinLoop(false) // ramping -> stabilizing
	if jobState.Phase != tempcontrol.PhaseStabilizing {
		t.Fatalf("expected stabilizing, got %s", jobState.Phase)
	}

	// A wide spread keeps the window sliding without error.
	for _, temp := range []float64{99.0, 99.5, 100.0, 100.4} {
		cryo.temp = temp
		advanceJobWithinLoop(false)
		if jobState.Phase != tempcontrol.PhaseStabilizing {
			t.Fatalf("expected to keep stabilizing at spread > tolerance, got %s", jobState.Phase)
		}
	}

	// Then it settles.
	for _, temp := range []float64{100.0, 100.01, 100.02} {
		cryo.temp = temp
		advanceJobWithinLoop(false)
	}
	if jobState.Phase != tempcontrol.PhaseMeasuring {
		t.Fatalf("expected measuring once settled, got %s", jobState.Phase)
	}

	_ = stopJob()
}

func TestSafetyCutoff(t *testing.T) {
	resetJobState(t)
	cryo := &fakeCryostat{temp: 390}
	cryo.inject()

	if err := startJob(job.Params{
		Kind:        job.KindDeltaRT,
		SampleName:  "s",
		MaxCurrent:  1e-3,
		Setpoint:    395,
		HeaterRange: "high",
	}); err != nil {
		t.Fatalf("startJob failed: %v", err)
	}
	shutdownCalled := false
	neutralize(nil)
	current.shutdown = func() error { shutdownCalled = true; return nil }

	cryo.temp = 401
	advanceJobWithinLoop(false)

	if jobState.Phase != tempcontrol.PhaseError {
		t.Fatalf("expected error phase above max safe temp, got %s", jobState.Phase)
	}
	if cryo.heaterOn {
		t.Fatal("expected heater off after safety cutoff")
	}
	if !shutdownCalled {
		t.Fatal("expected source shutdown after safety cutoff")
	}
	if jobState.LastError == "" {
		t.Fatal("expected a recorded error")
	}
}

func TestPauseClearsStabilityWindow(t *testing.T) {
	resetJobState(t)
	cryo := &fakeCryostat{temp: 99.9}
	cryo.inject()

	if err := startJob(job.Params{
		Kind:        job.KindDeltaRT,
		SampleName:  "s",
		MaxCurrent:  1e-3,
		Setpoint:    100,
		HeaterRange: "low",
	}); err != nil {
		t.Fatalf("startJob failed: %v", err)
	}
	neutralize(nil)

	advanceJobWithinLoop(false) // -> stabilizing
	advanceJobWithinLoop(false) // one window entry
	if len(current.window) == 0 {
		t.Fatal("expected a partially filled window")
	}

	if err := pauseJob(); err != nil {
		t.Fatalf("pauseJob failed: %v", err)
	}
	if advanceJobWithinLoop(false) {
		t.Fatal("expected no advancement while paused")
	}

	if err := resumeJob(); err != nil {
		t.Fatalf("resumeJob failed: %v", err)
	}
	if len(current.window) != 0 {
		t.Fatal("expected the stability window cleared on resume")
	}

	_ = stopJob()
}

func TestSweepJobCompletes(t *testing.T) {
	resetJobState(t)

	if err := startJob(job.Params{
		Kind:        job.KindIVSweep,
		SampleName:  "wire 3",
		MaxCurrent:  1e-3,
		CurrentStep: 5e-4,
	}); err != nil {
		t.Fatalf("startJob failed: %v", err)
	}
	if jobState.Phase != tempcontrol.PhaseMeasuring {
		t.Fatalf("expected a sweep job to start measuring, got %s", jobState.Phase)
	}

	points := len(current.sweep)
	if points == 0 {
		t.Fatal("expected a non-empty sweep")
	}

	current.prepare = func() error { return nil }
	current.shutdown = func() error { return nil }
	current.measure = func(_ float64) ([]string, bool, error) {
		current.sweepIdx++
		return []string{"0", "0", "0"}, current.sweepIdx >= len(current.sweep), nil
	}

	for i := 0; i < points; i++ {
		advanceJobWithinLoop(false)
	}
	if jobState.Phase != tempcontrol.PhaseDone {
		t.Fatalf("expected done after %d points, got %s", points, jobState.Phase)
	}
	if current.pointsDone != points {
		t.Fatalf("expected %d points logged, got %d", points, current.pointsDone)
	}
}

func TestStartJobRejectsSecond(t *testing.T) {
	resetJobState(t)
	cryo := &fakeCryostat{temp: 50}
	cryo.inject()

	if err := startJob(job.Params{
		Kind:        job.KindDeltaRT,
		SampleName:  "s",
		MaxCurrent:  1e-3,
		Setpoint:    100,
		HeaterRange: "low",
	}); err != nil {
		t.Fatalf("startJob failed: %v", err)
	}
	neutralize(nil)

	err := startJob(job.Params{Kind: job.KindLockinLog, SampleName: "s2"})
	if err != ErrJobInProgress {
		t.Fatalf("expected ErrJobInProgress, got %v", err)
	}

	_ = stopJob()
}
