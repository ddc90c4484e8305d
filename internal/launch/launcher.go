package launch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"reporunner/internal/detect"
	"reporunner/pkg/logging"
)

const subsystem = "Launcher"

// settleDelay is how long a start command must survive before it counts
// as started. Processes that die faster failed to come up.
const settleDelay = 2 * time.Second

// Launcher starts and supervises service processes.
type Launcher struct {
	settle time.Duration

	// Mockable for tests.
	lookPath func(string) (string, error)
}

// New creates a Launcher.
func New() *Launcher {
	return &Launcher{
		settle:   settleDelay,
		lookPath: exec.LookPath,
	}
}

// MissingTools returns the executables a service kind needs that are
// not on PATH.
func (l *Launcher) MissingTools(kind detect.Kind) []string {
	var missing []string
	for _, tool := range requiredTools(kind) {
		if _, err := l.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	return missing
}

// InstallDependencies runs the install step for a service (pip install,
// npm install). Kinds without an install step return nil immediately.
func (l *Launcher) InstallDependencies(ctx context.Context, svc detect.Descriptor) error {
	cmdline := installCommand(svc)
	if cmdline == nil {
		logging.Debug(subsystem, "No install step for %s", svc.ID)
		return nil
	}
	logging.Info(subsystem, "Installing dependencies for %s: %s", svc.ID, strings.Join(cmdline, " "))
	return l.Run(ctx, svc.Path, cmdline, nil)
}

// Run executes a command to completion in dir, with extra environment
// entries appended to the inherited environment. Output is captured and
// included in the error on failure.
func (l *Launcher) Run(ctx context.Context, dir string, cmdline []string, extraEnv map[string]string) error {
	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	cmd.Env = mergedEnv(extraEnv)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		tail := lastLines(output.String(), 20)
		return fmt.Errorf("command %q failed: %w\n%s", strings.Join(cmdline, " "), err, tail)
	}
	return nil
}

// Start launches the service process, injects PORT/HOST plus extraEnv,
// and waits for it to settle. A process that exits within the settle
// window returns a *ProcessStartError.
func (l *Launcher) Start(ctx context.Context, svc detect.Descriptor, port int, extraEnv map[string]string) (*Handle, error) {
	plan, err := startPlanFor(svc, port)
	if err != nil {
		return nil, &ProcessStartError{ServiceID: svc.ID, Command: "", Err: err}
	}

	env := map[string]string{
		"PORT": fmt.Sprintf("%d", port),
		"HOST": "127.0.0.1",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	for _, prep := range plan.prep {
		logging.Info(subsystem, "Preparing %s: %s", svc.ID, strings.Join(prep, " "))
		if err := l.Run(ctx, svc.Path, prep, env); err != nil {
			return nil, &ProcessStartError{ServiceID: svc.ID, Command: strings.Join(prep, " "), Err: err}
		}
	}

	commandLine := strings.Join(plan.run, " ")
	logging.Info(subsystem, "Starting %s: %s", svc.ID, commandLine)

	cmd := exec.CommandContext(ctx, plan.run[0], plan.run[1:]...)
	cmd.Dir = svc.Path
	cmd.Env = mergedEnv(env)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessStartError{ServiceID: svc.ID, Command: commandLine, Err: fmt.Errorf("failed to get stdout pipe: %w", err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessStartError{ServiceID: svc.ID, Command: commandLine, Err: fmt.Errorf("failed to get stderr pipe: %w", err)}
	}

	// Goroutines to stream process output into the run log.
	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			logging.Debug(svc.ID, "%s", strings.TrimSpace(scanner.Text()))
		}
	}()
	go func() {
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			logging.Debug(svc.ID, "%s", strings.TrimSpace(scanner.Text()))
		}
	}()

	if err := cmd.Start(); err != nil {
		return nil, &ProcessStartError{ServiceID: svc.ID, Command: commandLine, Err: err}
	}

	handle := &Handle{
		ServiceID: svc.ID,
		PID:       cmd.Process.Pid,
		Command:   commandLine,
		StartedAt: time.Now(),
		status:    StatusRunning,
		waitErr:   make(chan error, 1),
	}

	go func() {
		err := cmd.Wait()
		if handle.State() == StatusRunning {
			handle.setState(StatusExited)
		}
		handle.waitErr <- err
	}()

	handle.stopFn = func(grace time.Duration) error {
		if cmd.Process == nil {
			return nil
		}
		// Try to terminate gracefully first.
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			cmd.Process.Kill()
			<-handle.waitErr
			return nil
		}
		select {
		case <-handle.waitErr:
			return nil
		case <-time.After(grace):
			cmd.Process.Kill()
			<-handle.waitErr
			return nil
		}
	}

	// Settle check: a process that dies immediately never started.
	select {
	case waitErr := <-handle.waitErr:
		handle.setState(StatusExited)
		if waitErr == nil {
			waitErr = fmt.Errorf("process exited during startup")
		}
		return nil, &ProcessStartError{ServiceID: svc.ID, Command: commandLine, Err: waitErr}
	case <-time.After(l.settle):
	}

	logging.Info(subsystem, "Service %s running (pid=%d)", svc.ID, handle.PID)
	return handle, nil
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
