package config

// Default port per service role. Services whose role has no entry go
// straight to the fallback scan.
const (
	DefaultBackendPort  = 8000
	DefaultFrontendPort = 3000
	DefaultDBPort       = 5432
)

// GetDefaultConfig returns the built-in configuration. Every loaded
// configuration starts from this and overlays file settings on top.
func GetDefaultConfig() Config {
	return Config{
		Mode:           "full",
		TimeoutSeconds: 600,
		MaxRetries:     3,
		LogLevel:       "info",
		CheckpointDir:  ".reporunner",
		Ports: PortsConfig{
			Defaults: map[string]int{
				"backend":  DefaultBackendPort,
				"frontend": DefaultFrontendPort,
				"db":       DefaultDBPort,
			},
			FallbackStart:         8000,
			FallbackEnd:           8100,
			AllowTerminate:        Bool(false),
			TerminateGraceSeconds: 5,
		},
		Health: HealthConfig{
			IntervalSeconds:     2,
			Attempts:            5,
			ProbeTimeoutSeconds: 5,
		},
		Advisor: AdvisorConfig{
			Enabled:        Bool(true),
			APIKeyEnv:      "OPENAI_API_KEY",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
	}
}
