package workflow

import (
	"fmt"
	"time"

	"reporunner/internal/checkpoint"
	"reporunner/internal/detect"
	"reporunner/internal/health"
	"reporunner/internal/launch"
	"reporunner/internal/ports"
)

// Phase is a stage of the bring-up state machine.
type Phase string

const (
	PhaseAnalysis         Phase = "ANALYSIS"
	PhasePortMgmt         Phase = "PORT_MGMT"
	PhaseEnvAssess        Phase = "ENV_ASSESS"
	PhaseDepMgmt          Phase = "DEP_MGMT"
	PhaseServiceConfig    Phase = "SERVICE_CONFIG"
	PhaseServiceStartup   Phase = "SERVICE_STARTUP"
	PhaseHealthValidation Phase = "HEALTH_VALIDATION"
	PhaseOptimization     Phase = "OPTIMIZATION"
	PhaseDone             Phase = "DONE"
	PhaseError            Phase = "ERROR"
)

// phaseSequence is the order phases run in. DONE and ERROR are terminal
// and never appear here.
var phaseSequence = []Phase{
	PhaseAnalysis,
	PhasePortMgmt,
	PhaseEnvAssess,
	PhaseDepMgmt,
	PhaseServiceConfig,
	PhaseServiceStartup,
	PhaseHealthValidation,
	PhaseOptimization,
}

// TimeoutError reports that the global wall-clock budget ran out. It is
// distinct from a phase failure: nothing went wrong with the work, there
// was just no time left to continue.
type TimeoutError struct {
	Budget  time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run exceeded its %s budget after %s", e.Budget, e.Elapsed.Round(time.Second))
}

// OutcomeStatus describes how a phase ended.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeReplayed  OutcomeStatus = "replayed"
)

// PhaseOutcome is the final disposition of one phase within a run.
type PhaseOutcome struct {
	Phase    Phase
	Status   OutcomeStatus
	Attempts int
	Error    string
}

// State is the engine's working memory, filled in phase by phase.
type State struct {
	Phase Phase

	// Services in scheduler order.
	Services []detect.Descriptor

	Assignments []ports.Assignment

	// MissingTools maps service kind name to missing executables.
	MissingTools map[string][]string

	// Handles tracks launched processes by service ID. Never persisted;
	// a resumed run starts with none.
	Handles map[string]*launch.Handle

	Health health.Report

	// AccessURLs maps service ID to its local URL.
	AccessURLs map[string]string

	// ExtraEnv holds variables provisioned by self-heal remediations,
	// merged into every service's environment. Never persisted.
	ExtraEnv map[string]string
}

// portFor returns the assigned port for a service, or zero.
func (s *State) portFor(serviceID string) int {
	for _, as := range s.Assignments {
		if as.ServiceID == serviceID {
			return as.Port
		}
	}
	return 0
}

// serviceByID returns the descriptor for id, or nil.
func (s *State) serviceByID(id string) *detect.Descriptor {
	for i := range s.Services {
		if s.Services[i].ID == id {
			return &s.Services[i]
		}
	}
	return nil
}

// Result is what a finished run hands to reporting.
type Result struct {
	RunID       string
	RepoPath    string
	FinalPhase  Phase
	Outcomes    []PhaseOutcome
	Services    []detect.Descriptor
	Assignments []ports.Assignment
	Health      health.Report
	AccessURLs  map[string]string
	Fixes       []checkpoint.FixAttempt
	Elapsed     time.Duration
}

// Succeeded reports whether the run reached DONE with every phase
// completed or replayed.
func (r *Result) Succeeded() bool {
	if r.FinalPhase != PhaseDone {
		return false
	}
	for _, outcome := range r.Outcomes {
		if outcome.Status == OutcomeFailed {
			return false
		}
	}
	return true
}
