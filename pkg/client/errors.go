package client

import "errors"

var (
	// ErrDaemonNotRunning means the unix socket does not exist, i.e. picad
	// has not been started.
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied means the socket exists but cannot be opened by
	// the current user.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when the daemon answers 404, e.g. asking for
	// a job when none is running.
	ErrNotFound = errors.New("404 not found")
)
