package workflow

import (
	"context"
	"regexp"

	"reporunner/pkg/logging"
)

// secretVarPattern extracts the variable name from a missing-secret
// failure message, e.g. "KeyError: 'API_KEY'".
var secretVarPattern = regexp.MustCompile(`[A-Z][A-Z0-9_]*(?:KEY|SECRET|TOKEN)[A-Z0-9_]*`)

// secretPlaceholder is written for provisioned variables so the service
// can start; the operator replaces it with the real value.
const secretPlaceholder = "changeme"

// ApplyFix executes the mechanical remediation for a matched failure
// pattern before the phase is retried. Patterns without a mechanical
// remediation report false and leave the retry to run unchanged.
func (e *Engine) ApplyFix(ctx context.Context, phase, pattern, errText string) (bool, error) {
	switch pattern {
	case "port-conflict":
		return e.reallocatePorts()
	case "missing-secret":
		return e.provisionSecret(errText)
	}
	return false, nil
}

// reallocatePorts drops every claim and assigns fresh ports, then
// rewrites the service .env files so they name the new ports.
func (e *Engine) reallocatePorts() (bool, error) {
	if e.state == nil || len(e.state.Services) == 0 {
		return false, nil
	}

	e.allocator.ReleaseAll()
	assignments, err := e.allocator.Allocate(e.state.Services)
	if err != nil {
		return false, err
	}
	e.state.Assignments = assignments

	if len(e.state.Assignments) > 0 {
		if _, err := e.phaseServiceConfig(e.state); err != nil {
			return false, err
		}
	}
	logging.Info(subsystem, "Reallocated ports for %d service(s)", len(assignments))
	return true, nil
}

// provisionSecret writes a placeholder for the missing variable into
// every service's environment so the retry can get past the check.
func (e *Engine) provisionSecret(errText string) (bool, error) {
	name := secretVarPattern.FindString(errText)
	if name == "" || e.state == nil || len(e.state.Services) == 0 {
		return false, nil
	}

	if e.state.ExtraEnv == nil {
		e.state.ExtraEnv = make(map[string]string)
	}
	e.state.ExtraEnv[name] = secretPlaceholder

	if _, err := e.phaseServiceConfig(e.state); err != nil {
		return false, err
	}
	logging.Info(subsystem, "Provisioned placeholder value for %s", name)
	return true, nil
}
