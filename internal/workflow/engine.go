package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"reporunner/internal/checkpoint"
	"reporunner/internal/config"
	"reporunner/internal/dependency"
	"reporunner/internal/detect"
	"reporunner/internal/heal"
	"reporunner/internal/health"
	"reporunner/internal/launch"
	"reporunner/internal/ports"
	"reporunner/pkg/logging"
)

const subsystem = "Engine"

// stopGrace is how long a service gets between SIGTERM and SIGKILL
// during teardown.
const stopGrace = 5 * time.Second

// Detector finds the services in a repository.
type Detector interface {
	Detect(repoPath string) ([]detect.Descriptor, error)
}

// Allocator assigns listening ports to services.
type Allocator interface {
	Allocate(services []detect.Descriptor) ([]ports.Assignment, error)
	ReleaseAll()
}

// Launcher checks tooling, installs dependencies, and starts services.
type Launcher interface {
	MissingTools(kind detect.Kind) []string
	InstallDependencies(ctx context.Context, svc detect.Descriptor) error
	Start(ctx context.Context, svc detect.Descriptor, port int, extraEnv map[string]string) (*launch.Handle, error)
}

// Monitor checks whether started services are healthy.
type Monitor interface {
	Check(ctx context.Context, targets []health.Target) (health.Report, error)
}

// Engine drives a run through the phase state machine. It is the only
// goroutine that mutates run state; collaborators do their own internal
// concurrency.
type Engine struct {
	cfg      config.Config
	repoPath string

	detector   Detector
	allocator  Allocator
	launcher   Launcher
	monitor    Monitor
	run        *checkpoint.Run
	controller *heal.Controller

	// state is the working memory of the run in progress. Remediations
	// reach it through ApplyFix between phase attempts.
	state *State

	// now is mockable so timeout tests do not wait.
	now func() time.Time
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(cfg config.Config, repoPath string, det Detector, alloc Allocator, l Launcher, mon Monitor, run *checkpoint.Run, controller *heal.Controller) *Engine {
	e := &Engine{
		cfg:        cfg,
		repoPath:   repoPath,
		detector:   det,
		allocator:  alloc,
		launcher:   l,
		monitor:    mon,
		run:        run,
		controller: controller,
		now:        time.Now,
	}
	controller.SetApplier(e)
	return e
}

// Run executes the phase sequence. Phases already completed in the run
// checkpoint are replayed from their persisted outputs instead of
// re-executed, which is how resumption works. Phases that exhaust their
// retries are recorded as failed and the run continues best-effort;
// only fatal configuration errors and the global timeout abort it.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := e.now()
	budget := time.Duration(e.cfg.TimeoutSeconds) * time.Second
	completed := e.run.CompletedPhases()

	state := &State{Handles: make(map[string]*launch.Handle)}
	e.state = state
	var outcomes []PhaseOutcome
	var abortErr error

	for _, phase := range phaseSequence {
		if elapsed := e.now().Sub(start); elapsed > budget {
			abortErr = &TimeoutError{Budget: budget, Elapsed: elapsed}
			logging.Error(subsystem, abortErr, "Aborting run before phase %s", phase)
			break
		}

		if rec, ok := completed[string(phase)]; ok {
			if err := e.replayPhase(phase, rec.Output, state); err != nil {
				logging.Warn(subsystem, "Could not replay phase %s, re-running: %v", phase, err)
			} else {
				logging.Info(subsystem, "Phase %s replayed from checkpoint", phase)
				outcomes = append(outcomes, PhaseOutcome{Phase: phase, Status: OutcomeReplayed})
				continue
			}
		}

		if phase == PhaseOptimization && e.cfg.Mode == "fast" {
			logging.Info(subsystem, "Skipping phase %s in fast mode", phase)
			outcomes = append(outcomes, PhaseOutcome{Phase: phase, Status: OutcomeSkipped})
			continue
		}

		state.Phase = phase
		logging.Info(subsystem, "Entering phase %s", phase)

		var output any
		attempts := 0
		err := e.controller.Execute(ctx, string(phase), func(ctx context.Context) error {
			attempts++
			var phaseErr error
			output, phaseErr = e.runPhase(ctx, phase, state)
			return phaseErr
		})

		outcome := PhaseOutcome{Phase: phase, Attempts: attempts}
		if err != nil {
			outcome.Status = OutcomeFailed
			outcome.Error = err.Error()
			e.record(phase, attempts, checkpoint.StatusFailed, nil, err)

			var fatal *dependency.FatalConfigError
			if errors.As(err, &fatal) || ctx.Err() != nil {
				outcomes = append(outcomes, outcome)
				abortErr = err
				break
			}
			logging.Warn(subsystem, "Phase %s failed permanently, continuing best-effort", phase)
		} else {
			outcome.Status = OutcomeCompleted
			e.record(phase, attempts, checkpoint.StatusCompleted, output, nil)
		}
		outcomes = append(outcomes, outcome)
	}

	finalPhase := PhaseDone
	if abortErr != nil {
		finalPhase = PhaseError
		e.stopAll(state)
		e.allocator.ReleaseAll()
	}
	state.Phase = finalPhase

	result := &Result{
		RunID:       e.run.State.RunID,
		RepoPath:    e.repoPath,
		FinalPhase:  finalPhase,
		Outcomes:    outcomes,
		Services:    state.Services,
		Assignments: state.Assignments,
		Health:      state.Health,
		AccessURLs:  state.AccessURLs,
		Fixes:       e.run.State.Fixes,
		Elapsed:     e.now().Sub(start),
	}
	return result, abortErr
}

// record appends a phase attempt to the checkpoint. Persistence errors
// are logged, not fatal: losing history should not kill a healthy run.
func (e *Engine) record(phase Phase, attempt int, status checkpoint.RecordStatus, output any, phaseErr error) {
	rec := checkpoint.Record{
		Phase:   string(phase),
		Attempt: attempt,
		Status:  status,
	}
	if phaseErr != nil {
		rec.Error = phaseErr.Error()
	}
	if output != nil {
		data, err := json.Marshal(output)
		if err != nil {
			logging.Error(subsystem, err, "Could not serialize output of phase %s", phase)
		} else {
			rec.Output = data
		}
	}
	if err := e.run.AppendRecord(rec); err != nil {
		logging.Error(subsystem, err, "Could not checkpoint phase %s", phase)
	}
}

// stopAll tears down every process this run started.
func (e *Engine) stopAll(state *State) {
	for id, handle := range state.Handles {
		if err := handle.Stop(stopGrace); err != nil {
			logging.Error(subsystem, err, "Failed to stop service %s", id)
		}
	}
	state.Handles = make(map[string]*launch.Handle)
}
