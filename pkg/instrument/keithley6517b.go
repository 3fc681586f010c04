package instrument

import (
	"time"

	"github.com/gotmc/query"
	pkgerrors "github.com/pkg/errors"
)

// Keithley6517B drives a Keithley 6517B electrometer / high-resistance meter.
// It is used two ways: as a picoammeter for pyroelectric current, and with
// its internal voltage source for high-resistance I-V sweeps.
type Keithley6517B struct {
	conn Conn

	// zeroCheckDelay is how long to sit between zero-correction steps. The
	// instrument takes several seconds to settle at each step.
	zeroCheckDelay time.Duration
}

// NewKeithley6517B returns a driver over conn.
func NewKeithley6517B(conn Conn) *Keithley6517B {
	return &Keithley6517B{conn: conn, zeroCheckDelay: 5 * time.Second}
}

// Identify returns the *IDN? string.
func (k *Keithley6517B) Identify() (string, error) {
	return k.conn.Query("*IDN?")
}

// Reset clears the instrument.
func (k *Keithley6517B) Reset() error {
	if err := k.conn.Command("*RST"); err != nil {
		return err
	}
	return k.conn.Command("*CLS")
}

// ConfigureCurrent selects the ammeter function with autorange.
func (k *Keithley6517B) ConfigureCurrent() error {
	for _, cmd := range []string{
		"SENS:FUNC 'CURR'",
		"SENS:CURR:RANG:AUTO ON",
	} {
		if err := k.conn.Command("%s", cmd); err != nil {
			return pkgerrors.Wrap(err, "6517B current configuration failed")
		}
	}
	return nil
}

// ZeroCorrect runs the zero check / zero correct procedure the 6517B manual
// requires before low-current measurements. Slow on purpose.
func (k *Keithley6517B) ZeroCorrect() error {
	steps := []string{
		":SYST:ZCH ON",
		":SYST:ZCH OFF",
		":SYST:ZCOR ON",
	}
	for _, cmd := range steps {
		if err := k.conn.Command("%s", cmd); err != nil {
			return pkgerrors.Wrapf(err, "zero correction step %q failed", cmd)
		}
		time.Sleep(k.zeroCheckDelay)
	}
	return nil
}

// SetSourceVoltage programs the internal voltage source in volts.
func (k *Keithley6517B) SetSourceVoltage(volts float64) error {
	return k.conn.Command("SOUR:VOLT %.4f", volts)
}

// EnableSource turns the internal voltage source output on.
func (k *Keithley6517B) EnableSource() error {
	return k.conn.Command("OUTP ON")
}

// DisableSource turns the internal voltage source output off.
func (k *Keithley6517B) DisableSource() error {
	return k.conn.Command("OUTP OFF")
}

// Current triggers a reading and returns it in amps.
func (k *Keithley6517B) Current() (float64, error) {
	resp, err := k.conn.Query(":MEAS:CURR?")
	if err != nil {
		return 0, pkgerrors.Wrap(err, "6517B current read failed")
	}
	return parseFloatField(resp, 0)
}

// Resistance triggers a resistance reading in ohms.
func (k *Keithley6517B) Resistance() (float64, error) {
	return query.Float64(k.conn, ":MEAS:RES?")
}

// Shutdown zeroes the source and disables the output. Best effort.
func (k *Keithley6517B) Shutdown() error {
	errSet := k.SetSourceVoltage(0)
	errOff := k.DisableSource()
	if errSet != nil {
		return errSet
	}
	return errOff
}
