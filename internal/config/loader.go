// Package config loads and validates the orchestrator configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a configuration file, dispatching on extension. JSON and
// YAML are both accepted; an unknown extension is tried as JSON first,
// then YAML. A missing file is an error: the config is the run's entire
// task model and nothing sensible can happen without it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
				return nil, fmt.Errorf("parsing %s: not valid JSON (%v) or YAML (%v)", path, jsonErr, yamlErr)
			}
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

// ResolvePath resolves a possibly relative path against base.
func ResolvePath(value, base string) string {
	if value == "" {
		return base
	}
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(base, value)
}

// ApplyRunnerNoop replaces every runner command with a prompt-consuming
// no-op. Used for rehearsal runs via STAGEHAND_RUNNER_NOOP.
func (c *Config) ApplyRunnerNoop() {
	for name, runner := range c.Runners {
		runner.Command = `cat "{prompt}" > /dev/null`
		c.Runners[name] = runner
	}
}

// EnvTruthy reports whether an environment-style flag value is set to a
// recognized true value.
func EnvTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
