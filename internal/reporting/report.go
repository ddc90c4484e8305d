// Package reporting renders the outcome of a run for humans and
// machines: a text summary on the console and a JSON document for
// tooling.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"reporunner/internal/checkpoint"
	"reporunner/internal/workflow"
)

// Summary is the machine-readable run report.
type Summary struct {
	RunID      string            `json:"runId"`
	RepoPath   string            `json:"repoPath"`
	Succeeded  bool              `json:"succeeded"`
	FinalPhase string            `json:"finalPhase"`
	ElapsedSec float64           `json:"elapsedSec"`
	Completed  []string          `json:"completedPhases"`
	Failed     []PhaseFailure    `json:"failedPhases,omitempty"`
	Services   []ServiceSummary  `json:"services"`
	AccessURLs map[string]string `json:"accessUrls,omitempty"`
	Health     string            `json:"healthVerdict,omitempty"`
}

// PhaseFailure pairs a failed phase with its raw error and the best
// available suggestion from the fix history.
type PhaseFailure struct {
	Phase      string `json:"phase"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error"`
	Analysis   string `json:"analysis,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ServiceSummary is one service's final standing.
type ServiceSummary struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Role    string `json:"role"`
	Port    int    `json:"port,omitempty"`
	Healthy bool   `json:"healthy"`
}

// Summarize flattens a workflow result into a Summary.
func Summarize(result *workflow.Result) Summary {
	summary := Summary{
		RunID:      result.RunID,
		RepoPath:   result.RepoPath,
		Succeeded:  result.Succeeded(),
		FinalPhase: string(result.FinalPhase),
		ElapsedSec: result.Elapsed.Seconds(),
		AccessURLs: result.AccessURLs,
		Health:     string(result.Health.Verdict),
	}

	for _, outcome := range result.Outcomes {
		switch outcome.Status {
		case workflow.OutcomeCompleted, workflow.OutcomeReplayed:
			summary.Completed = append(summary.Completed, string(outcome.Phase))
		case workflow.OutcomeFailed:
			failure := PhaseFailure{
				Phase:    string(outcome.Phase),
				Attempts: outcome.Attempts,
				Error:    outcome.Error,
			}
			if fix := bestFixFor(result.Fixes, string(outcome.Phase)); fix != nil {
				failure.Analysis = fix.Analysis
				failure.Suggestion = fix.Fix
			}
			summary.Failed = append(summary.Failed, failure)
		}
	}

	healthByID := make(map[string]bool)
	for _, svc := range result.Health.Services {
		healthByID[svc.ServiceID] = svc.Healthy
	}
	portByID := make(map[string]int)
	for _, as := range result.Assignments {
		portByID[as.ServiceID] = as.Port
	}
	for _, svc := range result.Services {
		summary.Services = append(summary.Services, ServiceSummary{
			ID:      svc.ID,
			Kind:    svc.Kind.String(),
			Role:    string(svc.Role),
			Port:    portByID[svc.ID],
			Healthy: healthByID[svc.ID],
		})
	}
	return summary
}

// bestFixFor returns the most recent fix recorded for a phase, which is
// the one informed by the most history.
func bestFixFor(fixes []checkpoint.FixAttempt, phase string) *checkpoint.FixAttempt {
	for i := len(fixes) - 1; i >= 0; i-- {
		if fixes[i].Phase == phase {
			return &fixes[i]
		}
	}
	return nil
}

// WriteText renders the human-readable report.
func WriteText(w io.Writer, summary Summary) {
	status := "FAILED"
	if summary.Succeeded {
		status = "SUCCEEDED"
	}
	fmt.Fprintf(w, "Run %s %s (%.1fs, final phase %s)\n", summary.RunID, status, summary.ElapsedSec, summary.FinalPhase)

	fmt.Fprintf(w, "\nServices:\n")
	for _, svc := range summary.Services {
		healthMark := "down"
		if svc.Healthy {
			healthMark = "healthy"
		}
		line := fmt.Sprintf("  %-16s %-8s %-9s", svc.ID, svc.Kind, svc.Role)
		if svc.Port > 0 {
			line += fmt.Sprintf(" port %-5d", svc.Port)
		}
		fmt.Fprintf(w, "%s %s\n", line, healthMark)
	}

	if len(summary.AccessURLs) > 0 {
		fmt.Fprintf(w, "\nAccess URLs:\n")
		for _, svc := range summary.Services {
			if url, ok := summary.AccessURLs[svc.ID]; ok {
				fmt.Fprintf(w, "  %-16s %s\n", svc.ID, url)
			}
		}
	}

	if len(summary.Completed) > 0 {
		fmt.Fprintf(w, "\nCompleted phases: %s\n", strings.Join(summary.Completed, ", "))
	}
	for _, failure := range summary.Failed {
		fmt.Fprintf(w, "\nFailed phase %s after %d attempt(s):\n", failure.Phase, failure.Attempts)
		fmt.Fprintf(w, "  error: %s\n", failure.Error)
		if failure.Analysis != "" {
			fmt.Fprintf(w, "  analysis: %s\n", failure.Analysis)
		}
		if failure.Suggestion != "" {
			fmt.Fprintf(w, "  suggestion: %s\n", failure.Suggestion)
		}
	}
}

// WriteJSON renders the machine-readable report.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
