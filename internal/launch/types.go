package launch

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a launched process.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusStopped Status = "stopped"
)

// ProcessStartError reports that a service process could not be
// started, or exited before it settled. It is retryable.
type ProcessStartError struct {
	ServiceID string
	Command   string
	Err       error
}

func (e *ProcessStartError) Error() string {
	return fmt.Sprintf("failed to start service %q (%s): %v", e.ServiceID, e.Command, e.Err)
}

func (e *ProcessStartError) Unwrap() error {
	return e.Err
}

// Handle tracks one launched service process.
type Handle struct {
	ServiceID string
	PID       int
	Command   string
	StartedAt time.Time

	mu     sync.Mutex
	status Status

	stopFn func(grace time.Duration) error

	// waitErr receives the process exit error exactly once.
	waitErr chan error
}

// Status returns the current lifecycle state.
func (h *Handle) State() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handle) setState(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// Running reports whether the process is still up.
func (h *Handle) Running() bool {
	return h.State() == StatusRunning
}

// Stop terminates the process: SIGTERM first, SIGKILL after grace.
// Stopping an already-exited process is a no-op, and the check and
// state transition happen under the handle mutex so exactly one of
// any concurrent callers performs the stop.
func (h *Handle) Stop(grace time.Duration) error {
	h.mu.Lock()
	if h.status != StatusRunning || h.stopFn == nil {
		h.mu.Unlock()
		return nil
	}
	h.status = StatusStopped
	stop := h.stopFn
	h.mu.Unlock()

	return stop(grace)
}
