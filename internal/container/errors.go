package container

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoOutput indicates the child's stdout held neither a sentinel-delimited
// payload nor a non-empty fallback line.
var ErrNoOutput = errors.New("container produced no output payload")

// SpawnError indicates the container binary could not be started at all
// (missing binary, permission denied).
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError indicates the turn exceeded its wall-clock limit and the child
// was force-terminated.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("container timed out after %s", e.Timeout)
}

// ExitError indicates the child ran to completion but signaled failure.
type ExitError struct {
	Code       int
	StderrTail string
}

func (e *ExitError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("container exited with code %d", e.Code)
	}
	return fmt.Sprintf("container exited with code %d: %s", e.Code, e.StderrTail)
}

// tail returns the last n bytes of s, trimmed, for diagnostics.
func tail(s string, n int) string {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
