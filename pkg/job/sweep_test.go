package job

import (
	"math"
	"testing"
)

func TestBipolarSweep(t *testing.T) {
	points := BipolarSweep(1.0, 0.5)

	want := []float64{0, 0.5, 1.0, 0.5, 0, -0.5, -1.0, -0.5, 0, 0.5, 1.0}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d: %v", len(points), len(want), points)
	}
	for i, w := range want {
		if math.Abs(points[i]-w) > 1e-12 {
			t.Errorf("point %d = %v, want %v", i, points[i], w)
		}
	}
}

func TestBipolarSweepEndpoints(t *testing.T) {
	points := BipolarSweep(2e-3, 1e-4)
	if points[0] != 0 {
		t.Errorf("sweep must start at zero, got %v", points[0])
	}
	if last := points[len(points)-1]; math.Abs(last-2e-3) > 1e-12 {
		t.Errorf("sweep must end at +max, got %v", last)
	}

	var maxSeen, minSeen float64
	for _, p := range points {
		maxSeen = math.Max(maxSeen, p)
		minSeen = math.Min(minSeen, p)
	}
	if math.Abs(maxSeen-2e-3) > 1e-12 || math.Abs(minSeen+2e-3) > 1e-12 {
		t.Errorf("sweep extremes = [%v, %v], want [-2e-3, 2e-3]", minSeen, maxSeen)
	}
}

func TestBipolarSweepInvalidInput(t *testing.T) {
	if got := BipolarSweep(0, 0.1); got != nil {
		t.Errorf("expected nil for zero max, got %v", got)
	}
	if got := BipolarSweep(1, 0); got != nil {
		t.Errorf("expected nil for zero step, got %v", got)
	}
	if got := BipolarSweep(0.05, 0.1); got != nil {
		t.Errorf("expected nil when step exceeds max, got %v", got)
	}
}

func TestLinearSweep(t *testing.T) {
	points := LinearSweep(-5, 5, 11)
	if len(points) != 11 {
		t.Fatalf("got %d points, want 11", len(points))
	}
	if points[0] != -5 || points[10] != 5 {
		t.Errorf("endpoints = %v, %v; want -5, 5", points[0], points[10])
	}
	if math.Abs(points[5]) > 1e-12 {
		t.Errorf("midpoint = %v, want 0", points[5])
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{
			name:    "valid iv sweep",
			params:  Params{Kind: KindIVSweep, SampleName: "BFO-1", MaxCurrent: 1e-3, CurrentStep: 1e-4},
			wantErr: false,
		},
		{
			name:    "iv sweep missing step",
			params:  Params{Kind: KindIVSweep, SampleName: "BFO-1", MaxCurrent: 1e-3},
			wantErr: true,
		},
		{
			name:    "missing sample name",
			params:  Params{Kind: KindTempRamp, RampRate: 2, Setpoint: 310},
			wantErr: true,
		},
		{
			name:    "valid delta-rt",
			params:  Params{Kind: KindDeltaRT, SampleName: "LSMO", MaxCurrent: 1e-4, Setpoint: 150},
			wantErr: false,
		},
		{
			name:    "delta-rt without setpoint",
			params:  Params{Kind: KindDeltaRT, SampleName: "LSMO", MaxCurrent: 1e-4},
			wantErr: true,
		},
		{
			name:    "cv without frequency",
			params:  Params{Kind: KindCVSweep, SampleName: "BTO", StartVoltage: -5, StopVoltage: 5, VoltageSteps: 21},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			params:  Params{Kind: "noise", SampleName: "x"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
