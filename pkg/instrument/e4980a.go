package instrument

import (
	pkgerrors "github.com/pkg/errors"
)

// KeysightE4980A drives a Keysight E4980A LCR meter for C-V sweeps: Cp-D
// measurement function, fixed AC level and frequency, swept DC bias.
type KeysightE4980A struct {
	conn Conn
}

// NewKeysightE4980A returns a driver over conn.
func NewKeysightE4980A(conn Conn) *KeysightE4980A {
	return &KeysightE4980A{conn: conn}
}

// Identify returns the *IDN? string.
func (k *KeysightE4980A) Identify() (string, error) {
	return k.conn.Query("*IDN?")
}

// ConfigureCV prepares a capacitance-voltage sweep at the given measurement
// frequency (Hz) and AC level (V rms), bias still off.
func (k *KeysightE4980A) ConfigureCV(freq, acLevel float64) error {
	cmds := []struct {
		format string
		args   []any
	}{
		{"*RST", nil},
		{"*CLS", nil},
		{":FUNC:IMP CPD", nil},
		{":FUNC:IMP:RANG:AUTO ON", nil},
		{":APER MED", nil},
		{":FREQ %.6e", []any{freq}},
		{":VOLT:LEV %.4f", []any{acLevel}},
		{":TRIG:SOUR BUS", nil},
		{":INIT:CONT ON", nil},
	}
	for _, c := range cmds {
		if err := k.conn.Command(c.format, c.args...); err != nil {
			return pkgerrors.Wrap(err, "E4980A CV configuration failed")
		}
	}
	return nil
}

// SetBias programs the DC bias level in volts.
func (k *KeysightE4980A) SetBias(volts float64) error {
	return k.conn.Command(":BIAS:VOLT:LEV %.4f", volts)
}

// BiasOn enables the DC bias output.
func (k *KeysightE4980A) BiasOn() error {
	return k.conn.Command(":BIAS:STAT ON")
}

// BiasOff disables the DC bias output.
func (k *KeysightE4980A) BiasOff() error {
	return k.conn.Command(":BIAS:STAT OFF")
}

// Fetch triggers a measurement and returns (Cp in farads, D dissipation
// factor). The E4980A answers :FETC? with "Cp,D,status".
func (k *KeysightE4980A) Fetch() (cp, d float64, err error) {
	if err := k.conn.Command(":TRIG:IMM"); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "E4980A trigger failed")
	}
	resp, err := k.conn.Query(":FETC?")
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "E4980A fetch failed")
	}
	if cp, err = parseFloatField(resp, 0); err != nil {
		return 0, 0, err
	}
	if d, err = parseFloatField(resp, 1); err != nil {
		return 0, 0, err
	}
	return cp, d, nil
}
