package instrument

import (
	"testing"
)

func TestKeithley6221ArmDelta(t *testing.T) {
	conn := NewMockConn(nil)
	k := NewKeithley6221(conn)

	if err := k.ArmDelta(1e-4, 10); err != nil {
		t.Fatalf("ArmDelta failed: %v", err)
	}

	want := []string{
		"*RST",
		"SOUR:DELT:HIGH 1.000000e-04",
		"SOUR:DELT:PROT 10.000",
		"SOUR:DELT:ARM",
		"INIT:IMM",
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

func TestKeithley6221DeltaReading(t *testing.T) {
	conn := NewMockConn(map[string]string{
		"SENS:DATA:FRESh?": "+4.123456e-05,+1.234e+03",
	})
	k := NewKeithley6221(conn)

	got, err := k.DeltaReading()
	if err != nil {
		t.Fatalf("DeltaReading failed: %v", err)
	}
	if got != 4.123456e-05 {
		t.Errorf("DeltaReading() = %v, want 4.123456e-05", got)
	}
}

func TestKeithley6221ReadLinkedVoltage(t *testing.T) {
	conn := NewMockConn(map[string]string{
		"SYST:COMM:SER:ENT?": "-2.5e-06",
	})
	k := NewKeithley6221(conn)

	got, err := k.ReadLinkedVoltage()
	if err != nil {
		t.Fatalf("ReadLinkedVoltage failed: %v", err)
	}
	if got != -2.5e-06 {
		t.Errorf("ReadLinkedVoltage() = %v, want -2.5e-06", got)
	}

	sent := conn.Sent()
	if sent[0] != "SYST:COMM:SER:SEND 'READ?'" {
		t.Errorf("expected serial-link trigger first, got %q", sent[0])
	}
}

func TestKeithley2400Read(t *testing.T) {
	conn := NewMockConn(map[string]string{
		":READ?": "+1.234567e+00,+9.876543e-04,+9.91e+37,+1.2e+03,+2.15e+04",
	})
	k := NewKeithley2400(conn)

	v, i, err := k.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v != 1.234567 {
		t.Errorf("voltage = %v, want 1.234567", v)
	}
	if i != 9.876543e-04 {
		t.Errorf("current = %v, want 9.876543e-04", i)
	}
}

func TestParseFloatFieldErrors(t *testing.T) {
	if _, err := parseFloatField("1.0,2.0", 2); err == nil {
		t.Error("expected error for out-of-range field index")
	}
	if _, err := parseFloatField("abc", 0); err == nil {
		t.Error("expected error for non-numeric field")
	}
}
