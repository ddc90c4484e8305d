package ports

import (
	"fmt"
	"net"
	"sync"
	"time"

	"reporunner/internal/config"
	"reporunner/internal/detect"
	"reporunner/pkg/logging"
)

const subsystem = "PortAllocator"

// Allocator hands out one listening port per service. All methods are
// safe for concurrent use; allocation itself runs under a single mutex
// so two services can never race for the same port.
type Allocator struct {
	cfg config.PortsConfig

	mu      sync.Mutex
	claimed map[int]string // port -> service ID

	// Mockable probes for tests.
	probeFree    func(port int) bool
	occupyingPID func(port int) (int, error)
	terminate    func(pid int, grace time.Duration) error
}

// New creates an Allocator for the given port configuration.
func New(cfg config.PortsConfig) *Allocator {
	return &Allocator{
		cfg:          cfg,
		claimed:      make(map[int]string),
		probeFree:    probeFreeTCP,
		occupyingPID: findOccupyingPID,
		terminate:    terminateProcess,
	}
}

// Allocate assigns a port to every service, in the given order. The
// preferred port is the service's own declared port when present,
// otherwise the role default; when the preferred port is unavailable
// the fallback range is scanned. Terminating the preferred port's
// occupant, when permitted, happens only after the scan finds nothing,
// and the scan widens once before giving up.
//
// On any failure every claim made by this call is released, so a retry
// starts clean.
func (a *Allocator) Allocate(services []detect.Descriptor) ([]Assignment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	assignments := make([]Assignment, 0, len(services))
	claimedHere := make([]int, 0, len(services))

	rollback := func() {
		for _, port := range claimedHere {
			delete(a.claimed, port)
		}
	}

	for _, svc := range services {
		assignment, err := a.allocateOne(svc)
		if err != nil {
			rollback()
			return nil, err
		}
		a.claimed[assignment.Port] = svc.ID
		claimedHere = append(claimedHere, assignment.Port)
		assignments = append(assignments, assignment)
		logging.Info(subsystem, "Assigned port %d to %s (source=%s)", assignment.Port, svc.ID, assignment.Source)
	}

	if err := validateAssignments(services, assignments); err != nil {
		rollback()
		return nil, err
	}
	return assignments, nil
}

func (a *Allocator) allocateOne(svc detect.Descriptor) (Assignment, error) {
	preferred := svc.PortHint
	if preferred == 0 {
		preferred = a.cfg.Defaults[string(svc.Role)]
	}

	occupiedByForeign := false
	if preferred > 0 {
		if _, taken := a.claimed[preferred]; !taken {
			if a.probeFree(preferred) {
				return Assignment{ServiceID: svc.ID, Port: preferred, Source: SourceDefault}, nil
			}
			occupiedByForeign = true
			logging.Warn(subsystem, "Preferred port %d for %s is occupied, scanning fallback range", preferred, svc.ID)
		}
	}

	if port, ok := a.scanRange(a.cfg.FallbackStart, a.cfg.FallbackEnd); ok {
		return Assignment{ServiceID: svc.ID, Port: port, Source: SourceFallback}, nil
	}

	// Killing the occupant only happens once the scan came up empty.
	if occupiedByForeign && a.cfg.TerminateAllowed() {
		if port, ok := a.tryFree(svc.ID, preferred); ok {
			return Assignment{ServiceID: svc.ID, Port: port, Source: SourceFreed}, nil
		}
	}

	// Widen the scan once by the size of the original range.
	width := a.cfg.FallbackEnd - a.cfg.FallbackStart
	widenedEnd := a.cfg.FallbackEnd + width
	logging.Warn(subsystem, "Fallback range exhausted for %s, widening scan to %d-%d", svc.ID, a.cfg.FallbackEnd+1, widenedEnd)
	if port, ok := a.scanRange(a.cfg.FallbackEnd+1, widenedEnd); ok {
		return Assignment{ServiceID: svc.ID, Port: port, Source: SourceFallback}, nil
	}

	return Assignment{}, &PortConflictError{
		ServiceID: svc.ID,
		Port:      preferred,
		Reason:    fmt.Sprintf("preferred port occupied and no free port in range %d-%d", a.cfg.FallbackStart, widenedEnd),
	}
}

// tryFree terminates the process occupying port and re-probes.
func (a *Allocator) tryFree(serviceID string, port int) (int, bool) {
	pid, err := a.occupyingPID(port)
	if err != nil || pid <= 0 {
		logging.Debug(subsystem, "Could not identify occupant of port %d: %v", port, err)
		return 0, false
	}

	grace := time.Duration(a.cfg.TerminateGraceSeconds) * time.Second
	logging.Warn(subsystem, "Terminating PID %d to free port %d for %s", pid, port, serviceID)
	if err := a.terminate(pid, grace); err != nil {
		logging.Error(subsystem, err, "Failed to terminate PID %d on port %d", pid, port)
		return 0, false
	}

	if a.probeFree(port) {
		return port, true
	}
	return 0, false
}

func (a *Allocator) scanRange(start, end int) (int, bool) {
	for port := start; port <= end; port++ {
		if _, taken := a.claimed[port]; taken {
			continue
		}
		if a.probeFree(port) {
			return port, true
		}
	}
	return 0, false
}

// Release frees the claim held for a service, if any.
func (a *Allocator) Release(serviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port, id := range a.claimed {
		if id == serviceID {
			delete(a.claimed, port)
		}
	}
}

// ReleaseAll drops every claim.
func (a *Allocator) ReleaseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.claimed = make(map[int]string)
}

// validateAssignments checks the two allocator invariants: every
// service has exactly one port, and no port is assigned twice.
func validateAssignments(services []detect.Descriptor, assignments []Assignment) error {
	if len(assignments) != len(services) {
		return fmt.Errorf("allocation incomplete: %d assignments for %d services", len(assignments), len(services))
	}
	seen := make(map[int]string, len(assignments))
	for _, as := range assignments {
		if prev, dup := seen[as.Port]; dup {
			return fmt.Errorf("port %d assigned to both %q and %q", as.Port, prev, as.ServiceID)
		}
		seen[as.Port] = as.ServiceID
	}
	return nil
}

// probeFreeTCP reports whether we can bind the port on localhost.
func probeFreeTCP(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
