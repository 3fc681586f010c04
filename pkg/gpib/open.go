package gpib

import (
	"net"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.bug.st/serial"
)

// Open connects to a GPIB adapter. The endpoint is either a serial device
// path (e.g. /dev/ttyUSB0) for a Prologix GPIB-USB adapter, or host:port for
// a Prologix GPIB-Ethernet adapter.
func Open(endpoint string, opts ...ControllerOption) (*Controller, error) {
	if strings.Contains(endpoint, ":") && !strings.HasPrefix(endpoint, "/") {
		conn, err := net.DialTimeout("tcp", endpoint, 5*time.Second)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to connect to GPIB-Ethernet adapter at %s", endpoint)
		}
		return NewController(conn, opts...)
	}

	port, err := serial.Open(endpoint, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", endpoint)
	}
	// A stuck read would otherwise hang the whole bus mutex.
	if err := port.SetReadTimeout(2 * time.Second); err != nil {
		_ = port.Close()
		return nil, pkgerrors.Wrap(err, "failed to set serial read timeout")
	}

	return NewController(port, opts...)
}
