package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	f := NewFileConfig("") // never loaded, everything unset

	if f.Adapter() != "" {
		t.Errorf("expected empty adapter, got %q", f.Adapter())
	}
	if f.DataDir() != DefaultDataDir {
		t.Errorf("expected %q, got %q", DefaultDataDir, f.DataDir())
	}
	if f.PollInterval() != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %v", f.PollInterval())
	}
	if f.LakeshoreAddress() != DefaultLakeshoreAddress {
		t.Errorf("expected lakeshore address %d, got %d", DefaultLakeshoreAddress, f.LakeshoreAddress())
	}
	if f.AllowNonRootAccess() {
		t.Error("expected allowNonRootAccess to default to false")
	}

	tol := f.Tolerances()
	if tol.Ramp != DefaultRampTolerance {
		t.Errorf("expected ramp tolerance %v, got %v", DefaultRampTolerance, tol.Ramp)
	}
	if tol.Stability != DefaultStabilityTolerance {
		t.Errorf("expected stability tolerance %v, got %v", DefaultStabilityTolerance, tol.Stability)
	}
	if tol.StabilityChecks != DefaultStabilityChecks {
		t.Errorf("expected %d stability checks, got %d", DefaultStabilityChecks, tol.StabilityChecks)
	}
	if tol.MaxSafeTemp != DefaultMaxSafeTemp {
		t.Errorf("expected max safe temp %v, got %v", DefaultMaxSafeTemp, tol.MaxSafeTemp)
	}
}

func TestPollIntervalFloor(t *testing.T) {
	f := NewFileConfig("")
	f.SetPollInterval(0)

	if f.PollInterval() != time.Second {
		t.Errorf("expected poll interval floor of 1s, got %v", f.PollInterval())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	f := NewFileConfig(path)
	f.SetAdapter("/dev/ttyUSB0")
	f.SetPollInterval(5 * time.Second)
	f.SetMaxSafeTemp(350)
	f.SetAllowNonRootAccess(true)
	f.SetCron("0 2 * * *")

	if err := f.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	g := NewFileConfig(path)
	if err := g.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	if g.Adapter() != "/dev/ttyUSB0" {
		t.Errorf("expected adapter /dev/ttyUSB0, got %q", g.Adapter())
	}
	if g.PollInterval() != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %v", g.PollInterval())
	}
	if g.Tolerances().MaxSafeTemp != 350 {
		t.Errorf("expected max safe temp 350, got %v", g.Tolerances().MaxSafeTemp)
	}
	if !g.AllowNonRootAccess() {
		t.Error("expected allowNonRootAccess true")
	}
	if g.Cron() != "0 2 * * *" {
		t.Errorf("expected cron expression, got %q", g.Cron())
	}

	// Unset fields still fall back to defaults after a round trip.
	if g.LockinAddress() != DefaultLockinAddress {
		t.Errorf("expected lockin address %d, got %d", DefaultLockinAddress, g.LockinAddress())
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFileConfig(path)
	if err := f.Load(); err != nil {
		t.Fatalf("loading an empty file should succeed, got %v", err)
	}
	if f.DataDir() != DefaultDataDir {
		t.Errorf("expected defaults from empty file, got %q", f.DataDir())
	}
}
