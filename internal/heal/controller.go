package heal

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reporunner/internal/advisor"
	"reporunner/internal/checkpoint"
	"reporunner/internal/dependency"
	"reporunner/pkg/logging"
)

const subsystem = "SelfHeal"

// ManualReviewAnalysis is recorded when neither the pattern registry
// nor the advisor produced a usable diagnosis.
const ManualReviewAnalysis = "analysis unavailable - manual review required"

// Applier executes the mechanical part of a canned remediation before
// the failing phase is retried. It reports whether anything was done.
type Applier interface {
	ApplyFix(ctx context.Context, phase, pattern, errText string) (bool, error)
}

// Controller retries failed phase work, diagnosing each failure and
// recording every fix attempt in the run checkpoint.
type Controller struct {
	maxRetries int
	advisor    advisor.Advisor // nil when disabled
	applier    Applier         // nil when no remediations can be executed
	run        *checkpoint.Run

	// newBackOff is mockable so tests do not sleep.
	newBackOff func() backoff.BackOff
}

// NewController creates a Controller. maxRetries is the total number of
// attempts, counting the first. adv may be nil; diagnosis then uses the
// pattern registry only.
func NewController(maxRetries int, adv advisor.Advisor, run *checkpoint.Run) *Controller {
	return &Controller{
		maxRetries: maxRetries,
		advisor:    adv,
		run:        run,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 15 * time.Second
			return b
		},
	}
}

// SetApplier registers the collaborator that executes canned
// remediations. The engine registers itself here during wiring.
func (c *Controller) SetApplier(a Applier) {
	c.applier = a
}

// Execute runs attempt until it succeeds or attempts are exhausted.
// After each failure the error is diagnosed and the resulting fix
// attempt is appended to the checkpoint; its Succeeded flag reflects
// whether the following attempt passed.
//
// Fatal configuration errors and context cancellation stop retrying
// immediately.
func (c *Controller) Execute(ctx context.Context, phase string, attempt func(ctx context.Context) error) error {
	bo := c.newBackOff()
	var pending *checkpoint.FixAttempt

	flushPending := func(succeeded bool) {
		if pending == nil {
			return
		}
		pending.Succeeded = succeeded
		if err := c.run.AppendFix(*pending); err != nil {
			logging.Error(subsystem, err, "Failed to record fix attempt for phase %s", phase)
		}
		pending = nil
	}

	for attemptNum := 1; attemptNum <= c.maxRetries; attemptNum++ {
		err := attempt(ctx)
		if err == nil {
			flushPending(true)
			return nil
		}

		flushPending(false)
		logging.Warn(subsystem, "Phase %s attempt %d/%d failed: %v", phase, attemptNum, c.maxRetries, err)

		var fatal *dependency.FatalConfigError
		if errors.As(err, &fatal) {
			logging.Error(subsystem, err, "Phase %s hit a fatal configuration error, not retrying", phase)
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		fix, pattern := c.diagnose(ctx, phase, err)
		if attemptNum == c.maxRetries {
			// No retry follows; record the final diagnosis as failed.
			if appendErr := c.run.AppendFix(fix); appendErr != nil {
				logging.Error(subsystem, appendErr, "Failed to record final fix attempt for phase %s", phase)
			}
			return err
		}

		if pattern != "" && c.applier != nil {
			applied, applyErr := c.applier.ApplyFix(ctx, phase, pattern, err.Error())
			if applyErr != nil {
				logging.Warn(subsystem, "Could not apply %s remediation for phase %s: %v", pattern, phase, applyErr)
			}
			if applied {
				logging.Info(subsystem, "Applied %s remediation before retrying phase %s", pattern, phase)
			}
			fix.Applied = applied
		}
		pending = &fix

		select {
		case <-ctx.Done():
			flushPending(false)
			return err
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil
}

// diagnose produces a fix attempt for the error: pattern registry
// first, advisor second, manual-review downgrade last. The second
// return value is the name of the matched pattern, if any.
func (c *Controller) diagnose(ctx context.Context, phase string, failure error) (checkpoint.FixAttempt, string) {
	fix := checkpoint.FixAttempt{
		Phase:     phase,
		ErrorText: failure.Error(),
	}

	if suggestion, name, ok := MatchPattern(failure.Error()); ok {
		logging.Info(subsystem, "Failure in %s matched pattern %q", phase, name)
		fix.Analysis = suggestion.Analysis
		fix.Fix = suggestion.Fix
		fix.Steps = suggestion.Steps
		return fix, name
	}

	if c.advisor == nil {
		fix.Analysis = ManualReviewAnalysis
		return fix, ""
	}

	suggestion, err := c.advisor.Suggest(ctx, advisor.FailureContext{
		Phase:     phase,
		ErrorText: failure.Error(),
		Previous:  toPriorFixes(c.run.LastFixes(3)),
	})
	if err != nil {
		logging.Warn(subsystem, "Advisor could not analyze failure in %s: %v", phase, err)
		fix.Analysis = ManualReviewAnalysis
		return fix, ""
	}

	fix.Analysis = suggestion.Analysis
	fix.Fix = suggestion.Fix
	fix.Steps = suggestion.Steps
	return fix, ""
}

func toPriorFixes(fixes []checkpoint.FixAttempt) []advisor.PriorFix {
	prior := make([]advisor.PriorFix, 0, len(fixes))
	for _, f := range fixes {
		prior = append(prior, advisor.PriorFix{
			ErrorText: f.ErrorText,
			Fix:       f.Fix,
			Succeeded: f.Succeeded,
		})
	}
	return prior
}
