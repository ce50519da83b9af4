package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.overseer/config.json
// Project: .overseer/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".overseer", "config.json")
	projectPath := filepath.Join(".overseer", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, role := range loaded.Roles {
		base.Roles[key] = role
	}

	if loaded.Budget.SessionLimit != 0 {
		base.Budget.SessionLimit = loaded.Budget.SessionLimit
	}
	if loaded.Budget.DailyLimit != 0 {
		base.Budget.DailyLimit = loaded.Budget.DailyLimit
	}
	for role, share := range loaded.Budget.Shares {
		base.Budget.Shares[role] = share
	}

	if loaded.Executor.MaxWorkers != 0 {
		base.Executor.MaxWorkers = loaded.Executor.MaxWorkers
	}
	if loaded.Executor.TaskTimeoutSeconds != 0 {
		base.Executor.TaskTimeoutSeconds = loaded.Executor.TaskTimeoutSeconds
	}

	if loaded.Supervisor.MaxIterations != 0 {
		base.Supervisor.MaxIterations = loaded.Supervisor.MaxIterations
	}
	if len(loaded.Supervisor.Pipeline) > 0 {
		base.Supervisor.Pipeline = loaded.Supervisor.Pipeline
	}
	if loaded.Supervisor.AgentPlanner {
		base.Supervisor.AgentPlanner = true
	}

	if loaded.StatePath != "" {
		base.StatePath = loaded.StatePath
	}

	return nil
}
