package instrument

import (
	pkgerrors "github.com/pkg/errors"
)

// Keithley2182 drives a Keithley 2182/2182A nanovoltmeter on its own GPIB
// address, used together with a 2400 sourcing current.
type Keithley2182 struct {
	conn Conn
}

// NewKeithley2182 returns a driver over conn.
func NewKeithley2182(conn Conn) *Keithley2182 {
	return &Keithley2182{conn: conn}
}

// Identify returns the *IDN? string.
func (k *Keithley2182) Identify() (string, error) {
	return k.conn.Query("*IDN?")
}

// Configure resets the meter and selects DC volts on channel 1 with
// autorange.
func (k *Keithley2182) Configure() error {
	for _, cmd := range []string{
		"*RST",
		"*CLS",
		"SENS:FUNC 'VOLT'",
		"SENS:CHAN 1",
		"SENS:VOLT:CHAN1:RANG:AUTO ON",
	} {
		if err := k.conn.Command("%s", cmd); err != nil {
			return pkgerrors.Wrap(err, "2182 configuration failed")
		}
	}
	return nil
}

// ReadVoltage triggers one reading and returns it in volts.
func (k *Keithley2182) ReadVoltage() (float64, error) {
	resp, err := k.conn.Query(":READ?")
	if err != nil {
		return 0, pkgerrors.Wrap(err, "2182 read failed")
	}
	return parseFloatField(resp, 0)
}
