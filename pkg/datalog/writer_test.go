package datalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dat")

	w, err := Create(path,
		[]string{"Sample: BFO-1", "I: 1.00e-04 A"},
		[]string{"Timestamp", "Elapsed (s)", "Temperature (K)"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := w.WriteRow("2024-03-03 15:30:45", "2.00", "299.4321"); err != nil {
		t.Fatalf("WriteRow failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	want := []string{
		"# Sample: BFO-1",
		"# I: 1.00e-04 A",
		"Timestamp\tElapsed (s)\tTemperature (K)",
		"2024-03-03 15:30:45\t2.00\t299.4321",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestWriteRowRejectsWrongArity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dat")
	w, err := Create(path, nil, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer w.Close()

	if err := w.WriteRow("1"); err == nil {
		t.Error("expected error for short row")
	}
	if err := w.WriteRow("1", "2", "3"); err == nil {
		t.Error("expected error for long row")
	}
}

func TestCreateRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dat")
	w, err := Create(path, nil, []string{"a"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w.Close()

	if _, err := Create(path, nil, []string{"a"}); err == nil {
		t.Error("expected error when data file already exists")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dat")
	w, err := Create(path, nil, []string{"a"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := w.WriteRow("1"); err == nil {
		t.Error("expected error writing to closed file")
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 3, 15, 30, 45, 0, time.UTC)

	got := FileName("BFO-1", "delta-rt", ts)
	if got != "BFO-1_delta-rt_20240303-153045.dat" {
		t.Errorf("FileName = %q", got)
	}

	got = FileName("my sample / run 2", "iv", ts)
	if strings.ContainsAny(got, " /") {
		t.Errorf("FileName left unsafe characters in %q", got)
	}

	got = FileName("  ", "iv", ts)
	if !strings.HasPrefix(got, "sample_") {
		t.Errorf("empty sample name should fall back, got %q", got)
	}
}
