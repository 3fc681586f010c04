package instrument

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotmc/query"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HeaterRange is a Lakeshore 350 heater output range.
type HeaterRange int

// Heater range codes per the Model 350 manual, RANGE command.
const (
	HeaterOff    HeaterRange = 0
	HeaterLow    HeaterRange = 2
	HeaterMedium HeaterRange = 4
	HeaterHigh   HeaterRange = 5
)

var heaterRangeNames = map[HeaterRange]string{
	HeaterOff:    "off",
	HeaterLow:    "low",
	HeaterMedium: "medium",
	HeaterHigh:   "high",
}

func (r HeaterRange) String() string {
	if s, ok := heaterRangeNames[r]; ok {
		return s
	}
	return fmt.Sprintf("range(%d)", int(r))
}

// ParseHeaterRange maps a user-facing range name to its code.
func ParseHeaterRange(s string) (HeaterRange, error) {
	for code, name := range heaterRangeNames {
		if strings.EqualFold(s, name) {
			return code, nil
		}
	}
	return HeaterOff, pkgerrors.Errorf("invalid heater range %q (off, low, medium, high)", s)
}

// Lakeshore350 drives a Lakeshore Model 350 temperature controller. All
// control methods act on heater output 1 and read sensor input A, which is
// how every cryostat in the lab is wired.
type Lakeshore350 struct {
	conn Conn
}

// NewLakeshore350 returns a driver over conn.
func NewLakeshore350(conn Conn) *Lakeshore350 {
	return &Lakeshore350{conn: conn}
}

// Identify returns the *IDN? string.
func (l *Lakeshore350) Identify() (string, error) {
	return l.conn.Query("*IDN?")
}

// Reset clears the instrument to a known state.
func (l *Lakeshore350) Reset() error {
	if err := l.conn.Command("*RST"); err != nil {
		return err
	}
	// The 350 needs a moment after *RST before accepting the next command.
	time.Sleep(500 * time.Millisecond)
	return l.conn.Command("*CLS")
}

// ConfigureRamp programs a closed-loop ramp: output 1 in closed-loop PID on
// input A, setpoint in kelvin, ramp rate in K/min, and the given heater range.
func (l *Lakeshore350) ConfigureRamp(setpoint, ratePerMin float64, rng HeaterRange) error {
	cmds := []string{
		"OUTMODE 1,1,1,1",
		fmt.Sprintf("SETP 1,%.3f", setpoint),
		fmt.Sprintf("RAMP 1,1,%.3f", ratePerMin),
		fmt.Sprintf("RANGE 1,%d", int(rng)),
	}
	for _, cmd := range cmds {
		if err := l.conn.Command("%s", cmd); err != nil {
			return pkgerrors.Wrapf(err, "ramp configuration %q failed", cmd)
		}
	}
	return nil
}

// Temperature reads input A in kelvin.
func (l *Lakeshore350) Temperature() (float64, error) {
	return query.Float64(l.conn, "KRDG? A")
}

// HeaterOutput reads heater output 1 in percent of range.
func (l *Lakeshore350) HeaterOutput() (float64, error) {
	return query.Float64(l.conn, "HTR? 1")
}

// SetHeaterRange switches heater output 1 to the given range.
func (l *Lakeshore350) SetHeaterRange(rng HeaterRange) error {
	return l.conn.Command("RANGE 1,%d", int(rng))
}

// StopRamp disables ramping, zeroes the setpoint and turns the heater off.
// This is the safety path; each step is attempted even if an earlier one
// fails.
func (l *Lakeshore350) StopRamp() error {
	var firstErr error
	for _, cmd := range []string{"RAMP 1,0,0", "RANGE 1,0", "SETP 1,0"} {
		if err := l.conn.Command("%s", cmd); err != nil {
			logrus.WithError(err).Warnf("lakeshore stop step %q failed", cmd)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
