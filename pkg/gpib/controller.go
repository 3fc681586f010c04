// Package gpib talks to instruments through a Prologix-style GPIB
// controller-in-charge. The controller itself is addressed with `++` commands;
// everything else on the wire goes to whichever instrument address is
// currently selected.
package gpib

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	minPrimaryAddr = 0
	maxPrimaryAddr = 30
)

// Controller is a GPIB controller-in-charge attached to a serial port or a
// TCP socket. All bus traffic is serialized through a single mutex: GPIB is a
// shared bus and interleaving a query from one instrument with a write to
// another corrupts both.
type Controller struct {
	mu   sync.Mutex
	rw   io.ReadWriteCloser
	addr int // currently addressed instrument, -1 if none

	// auto mirrors the adapter's read-after-write setting. We keep it off and
	// issue explicit ++read requests, so a write-only command never leaves the
	// adapter waiting on an instrument that has nothing to say.
	auto bool

	readTimeoutMs int
}

// ControllerOption configures a Controller before its init sequence runs.
type ControllerOption func(*Controller)

// WithReadTimeout sets the adapter-side read timeout in milliseconds.
func WithReadTimeout(ms int) ControllerOption {
	return func(c *Controller) { c.readTimeoutMs = ms }
}

// NewController wraps rw in a controller-in-charge and sends the adapter init
// sequence. The caller keeps ownership of rw until NewController returns
// successfully; afterwards Close releases it.
func NewController(rw io.ReadWriteCloser, opts ...ControllerOption) (*Controller, error) {
	c := &Controller{
		rw:            rw,
		addr:          -1,
		readTimeoutMs: 500,
	}

	for _, opt := range opts {
		opt(c)
	}

	init := []string{
		"mode 1", // controller-in-charge
		"auto 0", // no read-after-write; we ask for reads explicitly
		"eoi 1",  // assert EOI with the last byte
		"eos 0",  // CR+LF termination on the GPIB side
		fmt.Sprintf("read_tmo_ms %d", c.readTimeoutMs),
		"eot_enable 1",
		"eot_char 10",
	}
	for _, cmd := range init {
		if err := c.commandController(cmd); err != nil {
			return nil, pkgerrors.Wrapf(err, "controller init %q failed", cmd)
		}
	}

	return c, nil
}

// Version asks the adapter for its firmware identification string.
func (c *Controller) Version() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryController("ver")
}

// Clear sends Selected Device Clear to the instrument at addr.
func (c *Controller) Clear(addr int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setAddr(addr); err != nil {
		return err
	}
	return c.commandController("clr")
}

// Command sends a SCPI command to the instrument at addr. No response is read.
func (c *Controller) Command(addr int, format string, a ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command(addr, format, a...)
}

// Query sends a SCPI query to the instrument at addr and returns the response
// with the trailing terminator stripped.
func (c *Controller) Query(addr int, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.command(addr, "%s", cmd); err != nil {
		return "", err
	}
	if !c.auto {
		if _, err := fmt.Fprintf(c.rw, "++read eoi\n"); err != nil {
			return "", pkgerrors.Wrap(err, "failed to request read")
		}
	}

	s, err := c.readLine()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "no response to %q from address %d", cmd, addr)
	}

	s = strings.TrimRight(s, "\r\n")
	logrus.WithFields(logrus.Fields{
		"addr":     addr,
		"cmd":      cmd,
		"response": s,
	}).Trace("gpib query")
	return s, nil
}

// Close releases the underlying port.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rw.Close()
}

func (c *Controller) command(addr int, format string, a ...any) error {
	if err := c.setAddr(addr); err != nil {
		return err
	}

	cmd := format
	if len(a) > 0 {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = strings.TrimSpace(cmd)

	logrus.WithFields(logrus.Fields{
		"addr": addr,
		"cmd":  cmd,
	}).Trace("gpib command")

	if _, err := fmt.Fprintf(c.rw, "%s\n", cmd); err != nil {
		return pkgerrors.Wrapf(err, "failed to send %q to address %d", cmd, addr)
	}
	return nil
}

// setAddr retargets the adapter. Callers must hold mu.
func (c *Controller) setAddr(addr int) error {
	if addr < minPrimaryAddr || addr > maxPrimaryAddr {
		return pkgerrors.Errorf("invalid GPIB primary address %d (must be %d-%d)", addr, minPrimaryAddr, maxPrimaryAddr)
	}
	if addr == c.addr {
		return nil
	}
	if err := c.commandController(fmt.Sprintf("addr %d", addr)); err != nil {
		return err
	}
	c.addr = addr
	return nil
}

// commandController sends a `++` command to the adapter itself. Callers must
// hold mu (or be running before the controller is shared).
func (c *Controller) commandController(cmd string) error {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	_, err := fmt.Fprintf(c.rw, "++%s\n", cmd)
	return pkgerrors.Wrapf(err, "controller command %q", cmd)
}

// queryController sends a `++` command and reads one response line.
func (c *Controller) queryController(cmd string) (string, error) {
	if err := c.commandController(cmd); err != nil {
		return "", err
	}
	s, err := c.readLine()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "controller query %q", cmd)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

var errNoResponse = pkgerrors.New("read timed out with no data")

// readDeadliner is satisfied by net.Conn. Serial ports get their timeout from
// SetReadTimeout at open instead.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// readLine reads one terminated response line from the adapter. The serial
// layer reports an expired read timeout as a zero-byte read with no error, and
// a buffered reader would keep retrying those while the bus mutex is held, so
// the line is assembled by hand and a zero-byte read fails right away. Callers
// must hold mu.
func (c *Controller) readLine() (string, error) {
	if d, ok := c.rw.(readDeadliner); ok {
		// Adapter-side timeout plus slack for the wire.
		_ = d.SetReadDeadline(time.Now().Add(time.Duration(c.readTimeoutMs)*time.Millisecond + time.Second))
		defer func() { _ = d.SetReadDeadline(time.Time{}) }()
	}

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			line = append(line, buf[0])
			if buf[0] == '\n' {
				return string(line), nil
			}
			continue
		}
		if err == io.EOF && len(line) > 0 {
			return string(line), nil
		}
		if err != nil {
			return string(line), err
		}
		return string(line), errNoResponse
	}
}

// Instrument binds a controller to one GPIB address so drivers can hold a
// single connection value instead of an (adapter, address) pair.
type Instrument struct {
	c    *Controller
	addr int
}

// Instrument returns a connection to the device at addr.
func (c *Controller) Instrument(addr int) *Instrument {
	return &Instrument{c: c, addr: addr}
}

// Addr returns the GPIB primary address this connection talks to.
func (i *Instrument) Addr() int { return i.addr }

// Command sends a SCPI command.
func (i *Instrument) Command(format string, a ...any) error {
	return i.c.Command(i.addr, format, a...)
}

// Query sends a SCPI query and returns the response.
func (i *Instrument) Query(cmd string) (string, error) {
	return i.c.Query(i.addr, cmd)
}

// Clear sends Selected Device Clear.
func (i *Instrument) Clear() error {
	return i.c.Clear(i.addr)
}
