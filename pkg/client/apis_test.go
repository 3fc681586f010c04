package client

import (
	"net"
	"net/http"
	"path/filepath"
	"testing"
)

// serveOnSocket starts an HTTP server on a unix socket and returns a client
// pointed at it.
func serveOnSocket(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "picad.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen on %s: %v", sock, err)
	}

	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return NewClient(sock)
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "quoted json string", body: `"0.3.0"`, want: "0.3.0"},
		{name: "bare string", body: "0.3.0", want: "0.3.0"},
		{name: "empty body", body: "", want: ""},
		{name: "single quote", body: `"`, want: `"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serveOnSocket(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))

			got, err := c.GetVersion()
			if err != nil {
				t.Fatalf("GetVersion failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}
