package instrument

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Keithley6221 drives a Keithley 6221 AC/DC current source. In delta mode the
// 6221 orchestrates a 2182A nanovoltmeter connected over the instruments'
// private RS-232 link, alternating source polarity to cancel thermal EMF; the
// GPIB side only ever talks to the 6221.
type Keithley6221 struct {
	conn Conn
}

// NewKeithley6221 returns a driver over conn.
func NewKeithley6221(conn Conn) *Keithley6221 {
	return &Keithley6221{conn: conn}
}

// Identify returns the *IDN? string.
func (k *Keithley6221) Identify() (string, error) {
	return k.conn.Query("*IDN?")
}

// ArmDelta configures and arms a delta measurement with the given high
// current level and compliance voltage, then starts it. The 2182A must be
// connected on the serial link or arming fails on the instrument side.
func (k *Keithley6221) ArmDelta(high, compliance float64) error {
	cmds := []string{
		"*RST",
		fmt.Sprintf("SOUR:DELT:HIGH %.6e", high),
		fmt.Sprintf("SOUR:DELT:PROT %.3f", compliance),
		"SOUR:DELT:ARM",
	}
	for _, cmd := range cmds {
		if err := k.conn.Command("%s", cmd); err != nil {
			return pkgerrors.Wrapf(err, "delta arm %q failed", cmd)
		}
	}
	return k.conn.Command("INIT:IMM")
}

// DeltaReading returns the freshest delta voltage in volts.
func (k *Keithley6221) DeltaReading() (float64, error) {
	resp, err := k.conn.Query("SENS:DATA:FRESh?")
	if err != nil {
		return 0, pkgerrors.Wrap(err, "delta reading failed")
	}
	return parseFloatField(resp, 0)
}

// AbortDelta stops the delta measurement and resets the source.
func (k *Keithley6221) AbortDelta() error {
	if err := k.conn.Command("SOUR:CLE"); err != nil {
		return err
	}
	return k.conn.Command("*RST")
}

// ConfigureDC sets the 6221 up as a plain DC current source with autorange
// and the given compliance, and readies the serially linked 2182 for DC
// voltage readings.
func (k *Keithley6221) ConfigureDC(compliance float64) error {
	cmds := []string{
		"*RST",
		"SOUR:FUNC CURR",
		"SOUR:CURR:RANG:AUTO ON",
		fmt.Sprintf("SOUR:CURR:COMP %.3f", compliance),
		"SYST:COMM:SER:SEND '*RST'",
		"SYST:COMM:SER:SEND 'SENS:FUNC \"VOLT:DC\"'",
		"SYST:COMM:SER:SEND 'SENS:VOLT:DC:RANG:AUTO ON'",
	}
	for _, cmd := range cmds {
		if err := k.conn.Command("%s", cmd); err != nil {
			return pkgerrors.Wrapf(err, "DC configuration %q failed", cmd)
		}
	}
	return nil
}

// SetCurrent programs the DC source level in amps.
func (k *Keithley6221) SetCurrent(amps float64) error {
	return k.conn.Command("SOUR:CURR %.6e", amps)
}

// EnableOutput turns the source output on.
func (k *Keithley6221) EnableOutput() error {
	return k.conn.Command("OUTP:STAT ON")
}

// DisableOutput turns the source output off.
func (k *Keithley6221) DisableOutput() error {
	return k.conn.Command("OUTP:STAT OFF")
}

// ReadLinkedVoltage asks the 2182 on the serial link for a reading and
// relays its response.
func (k *Keithley6221) ReadLinkedVoltage() (float64, error) {
	if err := k.conn.Command("SYST:COMM:SER:SEND 'READ?'"); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to trigger linked 2182")
	}
	resp, err := k.conn.Query("SYST:COMM:SER:ENT?")
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read back from linked 2182")
	}
	return parseFloatField(resp, 0)
}
