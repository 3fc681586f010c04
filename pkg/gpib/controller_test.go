package gpib

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// pipeConn feeds canned responses to reads and records everything written.
type pipeConn struct {
	wrote bytes.Buffer
	reads *strings.Reader
}

func newPipeConn(responses string) *pipeConn {
	return &pipeConn{reads: strings.NewReader(responses)}
}

func (p *pipeConn) Write(b []byte) (int, error) { return p.wrote.Write(b) }
func (p *pipeConn) Read(b []byte) (int, error)  { return p.reads.Read(b) }
func (p *pipeConn) Close() error                { return nil }

func TestNewControllerSendsInitSequence(t *testing.T) {
	conn := newPipeConn("")
	if _, err := NewController(conn); err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	sent := conn.wrote.String()
	for _, want := range []string{"++mode 1\n", "++auto 0\n", "++eoi 1\n", "++read_tmo_ms 500\n"} {
		if !strings.Contains(sent, want) {
			t.Errorf("init sequence missing %q, sent: %q", want, sent)
		}
	}
}

func TestQueryAddressesInstrumentAndRequestsRead(t *testing.T) {
	conn := newPipeConn("LSCI,MODEL350,350A14E,1.2\n")
	c, err := NewController(conn)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	conn.wrote.Reset()

	got, err := c.Query(12, "*IDN?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got != "LSCI,MODEL350,350A14E,1.2" {
		t.Errorf("unexpected response %q", got)
	}

	sent := conn.wrote.String()
	wantOrder := []string{"++addr 12\n", "*IDN?\n", "++read eoi\n"}
	idx := 0
	for _, w := range wantOrder {
		i := strings.Index(sent[idx:], w)
		if i < 0 {
			t.Fatalf("expected %q after offset %d in %q", w, idx, sent)
		}
		idx += i + len(w)
	}
}

func TestQueryDoesNotReaddressSameInstrument(t *testing.T) {
	conn := newPipeConn("1.0\n2.0\n")
	c, err := NewController(conn)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	conn.wrote.Reset()

	if _, err := c.Query(7, "READ?"); err != nil {
		t.Fatalf("first query failed: %v", err)
	}
	if _, err := c.Query(7, "READ?"); err != nil {
		t.Fatalf("second query failed: %v", err)
	}

	if n := strings.Count(conn.wrote.String(), "++addr 7\n"); n != 1 {
		t.Errorf("expected exactly one ++addr for repeated queries, got %d", n)
	}
}

// silentConn answers writes but never produces data, like a GPIB address with
// no instrument behind it. Reads return (0, nil) the way a serial port does
// when its read timeout expires.
type silentConn struct {
	wrote     bytes.Buffer
	readCalls int
}

func (s *silentConn) Write(b []byte) (int, error) { return s.wrote.Write(b) }
func (s *silentConn) Read(b []byte) (int, error)  { s.readCalls++; return 0, nil }
func (s *silentConn) Close() error                { return nil }

func TestQuerySilentAddressFailsFast(t *testing.T) {
	conn := &silentConn{}
	c, err := NewController(conn)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	if _, err := c.Query(9, "*IDN?"); err == nil {
		t.Fatal("expected an error from a silent address")
	}
	if conn.readCalls != 1 {
		t.Errorf("expected a single Read before giving up, got %d", conn.readCalls)
	}
}

// deadlineConn records SetReadDeadline calls, like a net.Conn would accept.
type deadlineConn struct {
	pipeConn
	deadlines []time.Time
}

func (d *deadlineConn) SetReadDeadline(t time.Time) error {
	d.deadlines = append(d.deadlines, t)
	return nil
}

func TestQuerySetsReadDeadlineOnNetConns(t *testing.T) {
	conn := &deadlineConn{pipeConn: pipeConn{reads: strings.NewReader("ok\n")}}
	c, err := NewController(conn)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	if _, err := c.Query(4, "*IDN?"); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(conn.deadlines) != 2 {
		t.Fatalf("expected a deadline set and cleared, got %d calls", len(conn.deadlines))
	}
	if conn.deadlines[0].IsZero() {
		t.Error("read deadline was not set before reading")
	}
	if !conn.deadlines[1].IsZero() {
		t.Error("read deadline was not cleared after reading")
	}
}

func TestCommandRejectsInvalidAddress(t *testing.T) {
	conn := newPipeConn("")
	c, err := NewController(conn)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	if err := c.Command(31, "*RST"); err == nil {
		t.Error("expected error for address 31")
	}
	if err := c.Command(-1, "*RST"); err == nil {
		t.Error("expected error for address -1")
	}
}
