package instrument

import (
	"testing"
)

func TestLakeshore350Temperature(t *testing.T) {
	conn := NewMockConn(map[string]string{"KRDG? A": "+299.4321"})
	l := NewLakeshore350(conn)

	got, err := l.Temperature()
	if err != nil {
		t.Fatalf("Temperature failed: %v", err)
	}
	if got != 299.4321 {
		t.Errorf("Temperature() = %v, want 299.4321", got)
	}
}

func TestLakeshore350ConfigureRamp(t *testing.T) {
	conn := NewMockConn(nil)
	l := NewLakeshore350(conn)

	if err := l.ConfigureRamp(310, 2, HeaterHigh); err != nil {
		t.Fatalf("ConfigureRamp failed: %v", err)
	}

	want := []string{
		"OUTMODE 1,1,1,1",
		"SETP 1,310.000",
		"RAMP 1,1,2.000",
		"RANGE 1,5",
	}
	sent := conn.Sent()
	if len(sent) != len(want) {
		t.Fatalf("sent %d commands, want %d: %v", len(sent), len(want), sent)
	}
	for i, w := range want {
		if sent[i] != w {
			t.Errorf("command %d = %q, want %q", i, sent[i], w)
		}
	}
}

func TestLakeshore350StopRampAlwaysTurnsHeaterOff(t *testing.T) {
	conn := NewMockConn(nil)
	l := NewLakeshore350(conn)

	if err := l.StopRamp(); err != nil {
		t.Fatalf("StopRamp failed: %v", err)
	}

	var sawRangeOff, sawSetpZero bool
	for _, cmd := range conn.Sent() {
		if cmd == "RANGE 1,0" {
			sawRangeOff = true
		}
		if cmd == "SETP 1,0" {
			sawSetpZero = true
		}
	}
	if !sawRangeOff || !sawSetpZero {
		t.Errorf("StopRamp did not turn heater off and zero setpoint: %v", conn.Sent())
	}
}

func TestParseHeaterRange(t *testing.T) {
	tests := []struct {
		in      string
		want    HeaterRange
		wantErr bool
	}{
		{"off", HeaterOff, false},
		{"Low", HeaterLow, false},
		{"MEDIUM", HeaterMedium, false},
		{"high", HeaterHigh, false},
		{"max", HeaterOff, true},
	}
	for _, tt := range tests {
		got, err := ParseHeaterRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHeaterRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseHeaterRange(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
