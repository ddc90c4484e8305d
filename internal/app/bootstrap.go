// Package app wires configuration and collaborators into a runnable
// engine. It is the only place that knows how everything fits together;
// the cmd layer just parses flags and calls in here.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"reporunner/internal/advisor"
	"reporunner/internal/checkpoint"
	"reporunner/internal/config"
	"reporunner/internal/detect"
	"reporunner/internal/heal"
	"reporunner/internal/health"
	"reporunner/internal/launch"
	"reporunner/internal/ports"
	"reporunner/internal/reporting"
	"reporunner/internal/workflow"
	"reporunner/pkg/logging"
)

const subsystem = "App"

// RunOptions carries the command-line inputs for a run.
type RunOptions struct {
	RepoPath   string
	ConfigPath string

	// Mode and TimeoutSeconds override the loaded config when non-zero.
	Mode           string
	TimeoutSeconds int

	// RunID resumes an existing run instead of starting a new one.
	RunID string

	JSONOutput bool
}

// Run executes a full bring-up (or resumption) and writes the report to
// out. The returned error is non-nil when the run aborted or finished
// with failed phases.
func Run(ctx context.Context, opts RunOptions, out io.Writer) error {
	repoPath, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return fmt.Errorf("resolving repository path: %w", err)
	}
	if info, err := os.Stat(repoPath); err != nil || !info.IsDir() {
		return fmt.Errorf("repository path %s is not a directory", repoPath)
	}

	cfg, err := config.LoadConfig(repoPath, opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	if opts.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = opts.TimeoutSeconds
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	checkpointDir := cfg.CheckpointDir
	if !filepath.IsAbs(checkpointDir) {
		checkpointDir = filepath.Join(repoPath, checkpointDir)
	}
	store, err := checkpoint.NewStore(checkpointDir)
	if err != nil {
		return err
	}

	var run *checkpoint.Run
	if opts.RunID != "" {
		run, err = store.Load(opts.RunID)
	} else {
		run, err = store.Create(repoPath)
	}
	if err != nil {
		return err
	}

	// A typed nil must not become a non-nil interface.
	var adv advisor.Advisor
	if openAI := advisor.NewOpenAI(cfg.Advisor); openAI != nil {
		adv = openAI
	}

	maxRetries := cfg.MaxRetries
	if cfg.Mode == "fast" {
		maxRetries = 1
	}
	controller := heal.NewController(maxRetries, adv, run)

	engine := workflow.NewEngine(
		cfg,
		repoPath,
		detect.New(),
		ports.New(cfg.Ports),
		launch.New(),
		health.New(cfg.Health),
		run,
		controller,
	)

	logging.Info(subsystem, "Starting run %s for %s (mode=%s)", run.State.RunID, repoPath, cfg.Mode)
	result, runErr := engine.Run(ctx)

	summary := reporting.Summarize(result)
	if opts.JSONOutput {
		if err := reporting.WriteJSON(out, summary); err != nil {
			return err
		}
	} else {
		reporting.WriteText(out, summary)
	}

	if runErr != nil {
		return runErr
	}
	if !summary.Succeeded {
		return fmt.Errorf("run %s finished with failed phases", run.State.RunID)
	}
	return nil
}

// Detect runs service detection only and writes what it found.
func Detect(repoPath string, out io.Writer) error {
	logging.InitForCLI(logging.LevelInfo, os.Stderr)

	services, err := detect.New().Detect(repoPath)
	if err != nil {
		return err
	}
	for _, svc := range services {
		fmt.Fprintf(out, "%-16s kind=%-8s role=%-9s path=%s", svc.ID, svc.Kind, svc.Role, svc.Path)
		if len(svc.DependsOn) > 0 {
			fmt.Fprintf(out, " dependsOn=%v", svc.DependsOn)
		}
		if svc.PortHint > 0 {
			fmt.Fprintf(out, " portHint=%d", svc.PortHint)
		}
		fmt.Fprintln(out)
	}
	return nil
}
