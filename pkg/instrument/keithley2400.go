package instrument

import (
	pkgerrors "github.com/pkg/errors"
)

// Keithley2400 drives a Keithley 2400 source-meter as a current source with
// voltage sense, which is the only way the lab uses it.
type Keithley2400 struct {
	conn Conn
}

// NewKeithley2400 returns a driver over conn.
func NewKeithley2400(conn Conn) *Keithley2400 {
	return &Keithley2400{conn: conn}
}

// Identify returns the *IDN? string.
func (k *Keithley2400) Identify() (string, error) {
	return k.conn.Query("*IDN?")
}

// ConfigureCurrentSource sets the 2400 up to source current with the given
// range and voltage compliance, output still off.
func (k *Keithley2400) ConfigureCurrentSource(rang, compliance float64) error {
	cmds := []struct {
		format string
		args   []any
	}{
		{"*RST", nil},
		{"SOUR:FUNC CURR", nil},
		{"SOUR:CURR:RANG %.6e", []any{rang}},
		{"SOUR:CURR 0", nil},
		{"SENS:FUNC \"VOLT\"", nil},
		{"SENS:VOLT:PROT %.3f", []any{compliance}},
		{"SENS:VOLT:RANG:AUTO ON", nil},
	}
	for _, c := range cmds {
		if err := k.conn.Command(c.format, c.args...); err != nil {
			return pkgerrors.Wrap(err, "2400 current source configuration failed")
		}
	}
	return nil
}

// SetCurrent programs the source level in amps.
func (k *Keithley2400) SetCurrent(amps float64) error {
	return k.conn.Command("SOUR:CURR %.6e", amps)
}

// EnableOutput turns the source output on.
func (k *Keithley2400) EnableOutput() error {
	return k.conn.Command("OUTP ON")
}

// DisableOutput turns the source output off.
func (k *Keithley2400) DisableOutput() error {
	return k.conn.Command("OUTP OFF")
}

// Read triggers a reading and returns (voltage, current). The 2400 answers
// :READ? with "voltage,current,resistance,time,status".
func (k *Keithley2400) Read() (voltage, current float64, err error) {
	resp, err := k.conn.Query(":READ?")
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "2400 read failed")
	}
	if voltage, err = parseFloatField(resp, 0); err != nil {
		return 0, 0, err
	}
	if current, err = parseFloatField(resp, 1); err != nil {
		return 0, 0, err
	}
	return voltage, current, nil
}

// Shutdown ramps the source to zero and disables the output. Best effort.
func (k *Keithley2400) Shutdown() error {
	errSet := k.SetCurrent(0)
	errOff := k.DisableOutput()
	if errSet != nil {
		return errSet
	}
	return errOff
}
