package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	// Point the home dir at an empty temp dir so no user config is found.
	origHome := osUserHomeDir
	defer func() { osUserHomeDir = origHome }()
	home := t.TempDir()
	osUserHomeDir = func() (string, error) { return home, nil }

	cfg, err := LoadConfig(t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 600, cfg.TimeoutSeconds)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 8000, cfg.Ports.Defaults["backend"])
	assert.Equal(t, 3000, cfg.Ports.Defaults["frontend"])
	assert.Equal(t, 5432, cfg.Ports.Defaults["db"])
	assert.Equal(t, 8000, cfg.Ports.FallbackStart)
	assert.Equal(t, 8100, cfg.Ports.FallbackEnd)
	assert.False(t, cfg.Ports.TerminateAllowed())
	assert.True(t, cfg.Advisor.IsEnabled())
	assert.Equal(t, 2, cfg.Health.IntervalSeconds)
	assert.Equal(t, 5, cfg.Health.Attempts)
}

func TestLoadConfig_ProjectOverlay(t *testing.T) {
	origHome := osUserHomeDir
	defer func() { osUserHomeDir = origHome }()
	home := t.TempDir()
	osUserHomeDir = func() (string, error) { return home, nil }

	repo := t.TempDir()
	projectConfig := `
mode: fast
maxRetries: 5
ports:
  defaults:
    backend: 9000
  allowTerminate: true
`
	require.NoError(t, os.WriteFile(filepath.Join(repo, projectConfigName), []byte(projectConfig), 0o644))

	cfg, err := LoadConfig(repo, "")
	require.NoError(t, err)

	assert.Equal(t, "fast", cfg.Mode)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 9000, cfg.Ports.Defaults["backend"])
	// Untouched defaults survive the merge.
	assert.Equal(t, 3000, cfg.Ports.Defaults["frontend"])
	assert.Equal(t, 600, cfg.TimeoutSeconds)
	assert.True(t, cfg.Ports.TerminateAllowed())
}

func TestLoadConfig_OmittedBlocksInheritDefaults(t *testing.T) {
	origHome := osUserHomeDir
	defer func() { osUserHomeDir = origHome }()
	home := t.TempDir()
	osUserHomeDir = func() (string, error) { return home, nil }

	// A file that only tweaks the timeout must not reset the boolean
	// settings of the blocks it omits.
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, projectConfigName), []byte("timeoutSeconds: 120\n"), 0o644))

	cfg, err := LoadConfig(repo, "")
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.TimeoutSeconds)
	assert.True(t, cfg.Advisor.IsEnabled(), "advisor default must survive a file without an advisor block")
	assert.False(t, cfg.Ports.TerminateAllowed())
	assert.Equal(t, "OPENAI_API_KEY", cfg.Advisor.APIKeyEnv)
}

func TestLoadConfig_BooleansLayerAcrossFiles(t *testing.T) {
	origHome := osUserHomeDir
	defer func() { osUserHomeDir = origHome }()
	home := t.TempDir()
	osUserHomeDir = func() (string, error) { return home, nil }

	userConfigPath := filepath.Join(home, userConfigDir, userConfigName)
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("ports:\n  allowTerminate: true\n"), 0o644))

	// The project file has no ports block, so the user setting holds.
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, projectConfigName), []byte("maxRetries: 2\n"), 0o644))

	cfg, err := LoadConfig(repo, "")
	require.NoError(t, err)
	assert.True(t, cfg.Ports.TerminateAllowed())

	// An explicit false in a later layer still wins.
	explicit := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("ports:\n  allowTerminate: false\nadvisor:\n  enabled: false\n"), 0o644))

	cfg, err = LoadConfig(repo, explicit)
	require.NoError(t, err)
	assert.False(t, cfg.Ports.TerminateAllowed())
	assert.False(t, cfg.Advisor.IsEnabled())
}

func TestLoadConfig_ExplicitWinsOverProject(t *testing.T) {
	origHome := osUserHomeDir
	defer func() { osUserHomeDir = origHome }()
	home := t.TempDir()
	osUserHomeDir = func() (string, error) { return home, nil }

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, projectConfigName), []byte("timeoutSeconds: 120\n"), 0o644))

	explicit := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("timeoutSeconds: 60\n"), 0o644))

	cfg, err := LoadConfig(repo, explicit)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.TimeoutSeconds)
}

func TestLoadConfig_MalformedProjectFile(t *testing.T) {
	origHome := osUserHomeDir
	defer func() { osUserHomeDir = origHome }()
	home := t.TempDir()
	osUserHomeDir = func() (string, error) { return home, nil }

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, projectConfigName), []byte("ports: ["), 0o644))

	_, err := LoadConfig(repo, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "turbo" }, "invalid mode"},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, "timeoutSeconds"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "maxRetries"},
		{"inverted range", func(c *Config) { c.Ports.FallbackEnd = c.Ports.FallbackStart - 1 }, "fallback range"},
		{"zero health attempts", func(c *Config) { c.Health.Attempts = 0 }, "health attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
