package advisor

import (
	"context"
	"fmt"
)

// Suggestion is a remediation proposal for a failed phase.
type Suggestion struct {
	Analysis string   `json:"analysis"`
	Fix      string   `json:"fix"`
	Steps    []string `json:"steps"`
}

// PriorFix is a previously attempted fix, replayed to the advisor as
// few-shot context so it does not repeat itself.
type PriorFix struct {
	ErrorText string
	Fix       string
	Succeeded bool
}

// FailureContext describes the failure the advisor should analyze.
type FailureContext struct {
	Phase     string
	ServiceID string
	ErrorText string

	// Previous holds the most recent prior fixes, newest last.
	Previous []PriorFix
}

// AdvisorError reports that the advisor could not produce a usable
// suggestion: transport failure, or a malformed response.
type AdvisorError struct {
	Reason string
	Err    error
}

func (e *AdvisorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("advisor error: %s: %v", e.Reason, e.Err)
	}
	return "advisor error: " + e.Reason
}

func (e *AdvisorError) Unwrap() error {
	return e.Err
}

// Advisor produces remediation suggestions for failures the pattern
// registry does not recognize.
type Advisor interface {
	Suggest(ctx context.Context, failure FailureContext) (Suggestion, error)
}
