package ports

import "fmt"

// Source records how an assignment's port was obtained.
type Source string

const (
	// SourceDefault means the role's preferred port (or the port the
	// repository itself declared) was free.
	SourceDefault Source = "default"
	// SourceFallback means the preferred port was taken and a port from
	// the fallback range was used instead.
	SourceFallback Source = "fallback"
	// SourceFreed means the preferred port was reclaimed by terminating
	// the process that occupied it.
	SourceFreed Source = "freed"
)

// Assignment binds a service to the port it will listen on.
type Assignment struct {
	ServiceID string `json:"serviceId"`
	Port      int    `json:"port"`
	Source    Source `json:"source"`
}

// PortConflictError reports that no port could be secured for a service.
// It is retryable: ports can free up between attempts.
type PortConflictError struct {
	ServiceID string
	Port      int
	Reason    string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port conflict for service %q on port %d: %s", e.ServiceID, e.Port, e.Reason)
}
