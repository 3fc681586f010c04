package instrument

import (
	"fmt"
	"sync"
)

// MockConn is a scripted connection for driver tests. Queries are answered
// from a prefill map; every command and query sent is recorded in order.
type MockConn struct {
	mu        sync.Mutex
	responses map[string]string
	sent      []string
}

// NewMockConn returns a MockConn answering queries from prefill.
func NewMockConn(prefill map[string]string) *MockConn {
	if prefill == nil {
		prefill = map[string]string{}
	}
	return &MockConn{responses: prefill}
}

// Respond sets (or replaces) the canned response for a query.
func (m *MockConn) Respond(cmd, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = response
}

// Command records the formatted command.
func (m *MockConn) Command(format string, a ...any) error {
	cmd := format
	if len(a) > 0 {
		cmd = fmt.Sprintf(format, a...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
	return nil
}

// Query records the query and returns its canned response.
func (m *MockConn) Query(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
	r, ok := m.responses[cmd]
	if !ok {
		return "", fmt.Errorf("no canned response for query %q", cmd)
	}
	return r, nil
}

// Sent returns a copy of everything sent so far.
func (m *MockConn) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}
