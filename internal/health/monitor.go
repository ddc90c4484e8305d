package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reporunner/internal/config"
	"reporunner/pkg/logging"
)

const subsystem = "HealthMonitor"

// Verdict summarizes the health of the whole service set.
type Verdict string

const (
	VerdictAllHealthy       Verdict = "all_healthy"
	VerdictPartiallyHealthy Verdict = "partially_healthy"
	VerdictAllDown          Verdict = "all_down"
	VerdictNoServices       Verdict = "no_services"
)

// Target is one service endpoint to check. HTTPPath is optional; when
// set, a TCP-reachable service must also answer the HTTP probe.
type Target struct {
	ServiceID string
	Port      int
	HTTPPath  string
}

// ServiceHealth is the per-service outcome of a check round.
type ServiceHealth struct {
	ServiceID string `json:"serviceId"`
	Healthy   bool   `json:"healthy"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

// Report is the outcome of checking every target.
type Report struct {
	Verdict  Verdict         `json:"verdict"`
	Services []ServiceHealth `json:"services"`
}

// CheckFailure is returned when not every service came up healthy. It
// is retryable; services can recover between attempts.
type CheckFailure struct {
	Verdict   Verdict
	Unhealthy []string
}

func (e *CheckFailure) Error() string {
	return fmt.Sprintf("health check failed (%s): unhealthy services: %s", e.Verdict, strings.Join(e.Unhealthy, ", "))
}

// Monitor polls service endpoints until they are healthy or attempts
// run out.
type Monitor struct {
	cfg config.HealthConfig

	// probe is mockable in tests. It checks one endpoint once.
	probe func(ctx context.Context, target Target) error
}

// New creates a Monitor.
func New(cfg config.HealthConfig) *Monitor {
	m := &Monitor{cfg: cfg}
	m.probe = m.probeOnce
	return m
}

// Check polls every target concurrently. Each service gets up to the
// configured number of attempts, spaced by the polling interval. The
// returned error is a *CheckFailure unless every service is healthy or
// there is nothing to check.
func (m *Monitor) Check(ctx context.Context, targets []Target) (Report, error) {
	if len(targets) == 0 {
		return Report{Verdict: VerdictNoServices}, nil
	}

	results := make([]ServiceHealth, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = m.watchService(gctx, target)
			return nil
		})
	}
	// Workers only record results, they never return errors.
	_ = g.Wait()

	report := Report{Services: results}
	healthy := 0
	var unhealthy []string
	for _, r := range results {
		if r.Healthy {
			healthy++
		} else {
			unhealthy = append(unhealthy, r.ServiceID)
		}
	}

	switch {
	case healthy == len(results):
		report.Verdict = VerdictAllHealthy
	case healthy == 0:
		report.Verdict = VerdictAllDown
	default:
		report.Verdict = VerdictPartiallyHealthy
	}

	logging.Info(subsystem, "Health check verdict: %s (%d/%d healthy)", report.Verdict, healthy, len(results))
	if report.Verdict != VerdictAllHealthy {
		return report, &CheckFailure{Verdict: report.Verdict, Unhealthy: unhealthy}
	}
	return report, nil
}

func (m *Monitor) watchService(ctx context.Context, target Target) ServiceHealth {
	result := ServiceHealth{ServiceID: target.ServiceID}
	interval := time.Duration(m.cfg.IntervalSeconds) * time.Second

	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		result.Attempts = attempt

		err := m.probe(ctx, target)
		if err == nil {
			result.Healthy = true
			result.LastError = ""
			logging.Debug(subsystem, "Service %s healthy after %d attempt(s)", target.ServiceID, attempt)
			return result
		}
		result.LastError = err.Error()
		logging.Debug(subsystem, "Service %s probe %d/%d failed: %v", target.ServiceID, attempt, m.cfg.Attempts, err)

		if attempt == m.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			result.LastError = ctx.Err().Error()
			return result
		case <-time.After(interval):
		}
	}
	return result
}

// probeOnce checks one endpoint: TCP connect first, then the optional
// HTTP probe. An HTTP status below 500 counts as healthy; the server is
// up even if the route needs auth or does not exist.
func (m *Monitor) probeOnce(ctx context.Context, target Target) error {
	timeout := time.Duration(m.cfg.ProbeTimeoutSeconds) * time.Second
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := fmt.Sprintf("127.0.0.1:%d", target.Port)
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(probeCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("tcp connect to %s: %w", address, err)
	}
	conn.Close()

	if target.HTTPPath == "" {
		return nil
	}

	url := fmt.Sprintf("http://%s%s", address, target.HTTPPath)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("http probe %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
