package heal

import (
	"regexp"

	"reporunner/internal/advisor"
)

// Pattern is a known failure signature with a canned remediation. The
// registry is consulted before the advisor: recognized failures get an
// immediate, deterministic suggestion with no model round-trip.
type Pattern struct {
	Name       string
	matcher    *regexp.Regexp
	Suggestion advisor.Suggestion
}

var registry = []Pattern{
	{
		Name:    "port-conflict",
		matcher: regexp.MustCompile(`(?i)(address already in use|EADDRINUSE|port conflict|bind: address|port \d+ is (already )?in use)`),
		Suggestion: advisor.Suggestion{
			Analysis: "A process is already listening on the port this service wants.",
			Fix:      "Reallocate the service to a free port, or terminate the occupying process.",
			Steps: []string{
				"Identify the process occupying the port",
				"Stop it, or enable ports.allowTerminate to reclaim the port automatically",
				"Retry; the allocator will fall back to a free port in the scan range",
			},
		},
	},
	{
		Name:    "dependency-conflict",
		matcher: regexp.MustCompile(`(?i)(ResolutionImpossible|ERESOLVE|version conflict|could not find a version|No matching distribution|conflicting dependencies)`),
		Suggestion: advisor.Suggestion{
			Analysis: "The package manager could not resolve a mutually compatible dependency set.",
			Fix:      "Relax or pin the conflicting version constraints and reinstall.",
			Steps: []string{
				"Read the resolver output to find the conflicting packages",
				"Pin or loosen their versions in requirements.txt or package.json",
				"Rerun the install step",
			},
		},
	},
	{
		Name:    "missing-secret",
		matcher: regexp.MustCompile(`(?i)(missing secret|SECRET_KEY|KeyError: '\w*(KEY|SECRET|TOKEN)|environment variable \S+ (is )?not set|required env)`),
		Suggestion: advisor.Suggestion{
			Analysis: "The service requires a secret or environment variable that is not set.",
			Fix:      "Provide the missing variable in the service's .env file.",
			Steps: []string{
				"Check .env.example for the expected variable names",
				"Add the missing entries to the generated .env file",
				"Restart the service",
			},
		},
	},
	{
		Name:    "db-connection",
		matcher: regexp.MustCompile(`(?i)(could not connect to server|connection refused.*(5432|3306|27017)|OperationalError|ECONNREFUSED.*(postgres|mysql|mongo)|database .* does not exist)`),
		Suggestion: advisor.Suggestion{
			Analysis: "The service could not reach its database.",
			Fix:      "Make sure the database service is running and the connection URL matches its assigned port.",
			Steps: []string{
				"Verify the database container or process is up",
				"Check DATABASE_URL against the port the allocator assigned",
				"Create the database if it does not exist yet",
			},
		},
	},
}

// MatchPattern finds the first registered pattern matching the error
// text and returns its canned suggestion.
func MatchPattern(errText string) (advisor.Suggestion, string, bool) {
	for _, p := range registry {
		if p.matcher.MatchString(errText) {
			return p.Suggestion, p.Name, true
		}
	}
	return advisor.Suggestion{}, "", false
}
