package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir

const (
	userConfigDir     = ".config/reporunner"
	userConfigName    = "config.yaml"
	projectConfigName = ".reporunner.yaml"
)

// LoadConfig loads the configuration for a run against repoPath by
// layering defaults, user settings, the project file inside the target
// repository, and finally an explicit --config file. Later layers win.
func LoadConfig(repoPath, explicitPath string) (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional, keep going with defaults.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	if repoPath != "" {
		projectConfigPath := filepath.Join(repoPath, projectConfigName)
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	if explicitPath != "" {
		explicitConfig, err := loadConfigFromFile(explicitPath)
		if err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", explicitPath, err)
		}
		config = mergeConfigs(config, explicitConfig)
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, userConfigName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Zero values
// in the overlay leave the base value in place; the boolean settings
// are pointers so that an absent key inherits instead of resetting.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Mode != "" {
		merged.Mode = overlay.Mode
	}
	if overlay.TimeoutSeconds != 0 {
		merged.TimeoutSeconds = overlay.TimeoutSeconds
	}
	if overlay.MaxRetries != 0 {
		merged.MaxRetries = overlay.MaxRetries
	}
	if overlay.LogLevel != "" {
		merged.LogLevel = overlay.LogLevel
	}
	if overlay.CheckpointDir != "" {
		merged.CheckpointDir = overlay.CheckpointDir
	}

	for role, port := range overlay.Ports.Defaults {
		if merged.Ports.Defaults == nil {
			merged.Ports.Defaults = make(map[string]int)
		}
		merged.Ports.Defaults[role] = port
	}
	if overlay.Ports.FallbackStart != 0 {
		merged.Ports.FallbackStart = overlay.Ports.FallbackStart
	}
	if overlay.Ports.FallbackEnd != 0 {
		merged.Ports.FallbackEnd = overlay.Ports.FallbackEnd
	}
	if overlay.Ports.AllowTerminate != nil {
		merged.Ports.AllowTerminate = overlay.Ports.AllowTerminate
	}
	if overlay.Ports.TerminateGraceSeconds != 0 {
		merged.Ports.TerminateGraceSeconds = overlay.Ports.TerminateGraceSeconds
	}

	if overlay.Health.IntervalSeconds != 0 {
		merged.Health.IntervalSeconds = overlay.Health.IntervalSeconds
	}
	if overlay.Health.Attempts != 0 {
		merged.Health.Attempts = overlay.Health.Attempts
	}
	if overlay.Health.ProbeTimeoutSeconds != 0 {
		merged.Health.ProbeTimeoutSeconds = overlay.Health.ProbeTimeoutSeconds
	}

	if overlay.Advisor.Enabled != nil {
		merged.Advisor.Enabled = overlay.Advisor.Enabled
	}
	if overlay.Advisor.APIKeyEnv != "" {
		merged.Advisor.APIKeyEnv = overlay.Advisor.APIKeyEnv
	}
	if overlay.Advisor.BaseURL != "" {
		merged.Advisor.BaseURL = overlay.Advisor.BaseURL
	}
	if overlay.Advisor.Model != "" {
		merged.Advisor.Model = overlay.Advisor.Model
	}
	if overlay.Advisor.TimeoutSeconds != 0 {
		merged.Advisor.TimeoutSeconds = overlay.Advisor.TimeoutSeconds
	}

	return merged
}

// Validate rejects configurations the engine cannot run with.
func Validate(c Config) error {
	if c.Mode != "full" && c.Mode != "fast" {
		return fmt.Errorf("invalid mode %q: must be \"full\" or \"fast\"", c.Mode)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeoutSeconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("maxRetries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Ports.FallbackStart <= 0 || c.Ports.FallbackEnd < c.Ports.FallbackStart {
		return fmt.Errorf("invalid port fallback range [%d, %d]", c.Ports.FallbackStart, c.Ports.FallbackEnd)
	}
	if c.Health.Attempts < 1 {
		return fmt.Errorf("health attempts must be at least 1, got %d", c.Health.Attempts)
	}
	return nil
}
