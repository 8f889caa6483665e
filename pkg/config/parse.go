package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/response"
)

// Defaults applied before validation
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultNetlistFlag  = "-netlist"
	DefaultBatchFlag    = "-b"
	DefaultPollStrategy = "constant"
	DefaultPollInterval = "200ms"
	DefaultSettle       = "100ms"
	DefaultTimeout      = "10m"
)

// ParseConfigYAML parses a Config from YAML bytes, fills defaults and
// validates it.
func ParseConfigYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ParseConfigYAMLString parses a Config from a YAML string and validates it.
func ParseConfigYAMLString(yamlText string) (*Config, error) {
	return ParseConfigYAML([]byte(yamlText))
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.MatchMode == 0 {
		cfg.MatchMode = response.Amplitude
	}

	sim := &cfg.Simulator
	if sim.NetlistFlag == "" {
		sim.NetlistFlag = DefaultNetlistFlag
	}
	if sim.BatchFlag == "" {
		sim.BatchFlag = DefaultBatchFlag
	}
	if sim.Poll.Strategy == "" {
		sim.Poll.Strategy = DefaultPollStrategy
	}
	if sim.Poll.Interval == "" {
		sim.Poll.Interval = DefaultPollInterval
	}
	if sim.Settle == "" {
		sim.Settle = DefaultSettle
	}
	if sim.Timeout == "" {
		sim.Timeout = DefaultTimeout
	}
}
