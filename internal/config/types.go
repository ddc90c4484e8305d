package config

// Config is the root configuration for a reporunner run.
type Config struct {
	// Mode selects how aggressively the engine works through failures.
	// "full" runs every phase with self-heal retries; "fast" skips the
	// optimization phase and caps retries at one.
	Mode string `yaml:"mode,omitempty"`

	// TimeoutSeconds is the global wall-clock budget for a run. When it
	// expires the engine aborts before entering the next phase.
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`

	// MaxRetries is the total number of attempts per phase, counting the
	// first one.
	MaxRetries int `yaml:"maxRetries,omitempty"`

	LogLevel string `yaml:"logLevel,omitempty"`

	// CheckpointDir is where run checkpoint files are written, relative
	// to the target repository unless absolute.
	CheckpointDir string `yaml:"checkpointDir,omitempty"`

	Ports   PortsConfig   `yaml:"ports,omitempty"`
	Health  HealthConfig  `yaml:"health,omitempty"`
	Advisor AdvisorConfig `yaml:"advisor,omitempty"`
}

// PortsConfig controls the port allocator.
type PortsConfig struct {
	// Defaults maps a service role to its preferred port.
	Defaults map[string]int `yaml:"defaults,omitempty"`

	// FallbackStart/FallbackEnd bound the scan range used when a default
	// port is taken.
	FallbackStart int `yaml:"fallbackStart,omitempty"`
	FallbackEnd   int `yaml:"fallbackEnd,omitempty"`

	// AllowTerminate permits killing the process that occupies a wanted
	// port. Off by default; freeing ports is destructive. A nil value
	// means the setting was not given and inherits the earlier layer.
	AllowTerminate *bool `yaml:"allowTerminate,omitempty"`

	// TerminateGraceSeconds is how long to wait after SIGTERM before
	// escalating to SIGKILL.
	TerminateGraceSeconds int `yaml:"terminateGraceSeconds,omitempty"`
}

// HealthConfig controls the post-startup health polling loop.
type HealthConfig struct {
	IntervalSeconds     int `yaml:"intervalSeconds,omitempty"`
	Attempts            int `yaml:"attempts,omitempty"`
	ProbeTimeoutSeconds int `yaml:"probeTimeoutSeconds,omitempty"`
}

// AdvisorConfig controls the LLM-backed fix advisor. When no API key is
// available the advisor is disabled and only the pattern registry runs.
type AdvisorConfig struct {
	// Enabled turns the advisor on or off. A nil value means the setting
	// was not given and inherits the earlier layer.
	Enabled *bool `yaml:"enabled,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"apiKeyEnv,omitempty"`

	// BaseURL overrides the OpenAI-compatible endpoint, e.g. for a local
	// model server.
	BaseURL string `yaml:"baseURL,omitempty"`

	Model string `yaml:"model,omitempty"`

	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`
}

// TerminateAllowed reports whether the allocator may kill a port's
// occupying process.
func (p PortsConfig) TerminateAllowed() bool {
	return p.AllowTerminate != nil && *p.AllowTerminate
}

// IsEnabled reports whether the advisor should be constructed.
func (a AdvisorConfig) IsEnabled() bool {
	return a.Enabled != nil && *a.Enabled
}

// Bool returns a pointer to v, for the tri-state boolean settings.
func Bool(v bool) *bool {
	return &v
}
