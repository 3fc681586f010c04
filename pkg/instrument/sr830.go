package instrument

import (
	"fmt"
	"strings"

	"github.com/gotmc/query"
	pkgerrors "github.com/pkg/errors"
)

// SR830 drives a Stanford Research Systems SR830 lock-in amplifier, read-only:
// PICA logs its outputs, it does not configure the reference or input stages.
type SR830 struct {
	conn Conn
}

// NewSR830 returns a driver over conn.
func NewSR830(conn Conn) *SR830 {
	return &SR830{conn: conn}
}

// Identify returns the *IDN? string.
func (s *SR830) Identify() (string, error) {
	return s.conn.Query("*IDN?")
}

// SensitivityCode returns the integer sensitivity code (SENS?); the mapping
// to full-scale volts is in the SR830 manual.
func (s *SR830) SensitivityCode() (int, error) {
	return query.Int(s.conn, "SENS?")
}

// SnapXY reads X and Y simultaneously in volts.
func (s *SR830) SnapXY() (x, y float64, err error) {
	return s.snap(1, 2)
}

// SnapRTheta reads R (volts) and theta (degrees) simultaneously.
func (s *SR830) SnapRTheta() (r, theta float64, err error) {
	return s.snap(3, 4)
}

func (s *SR830) snap(a, b int) (float64, float64, error) {
	resp, err := s.conn.Query(fmt.Sprintf("SNAP? %d,%d", a, b))
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "SR830 snap failed")
	}
	fields := strings.Split(resp, ",")
	if len(fields) != 2 {
		return 0, 0, pkgerrors.Errorf("SR830 snap returned %q, wanted two fields", resp)
	}
	first, err := parseFloatField(resp, 0)
	if err != nil {
		return 0, 0, err
	}
	second, err := parseFloatField(resp, 1)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}
