package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/utils"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", cfg.LogFormat)
	}

	if err := validateSimulator(&cfg.Simulator); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}

	if strings.TrimSpace(cfg.Schematic) == "" {
		return fmt.Errorf("schematic is required")
	}
	if strings.TrimSpace(cfg.OutputNode) == "" {
		return fmt.Errorf("output_node is required")
	}
	if !cfg.MatchMode.Valid() {
		return fmt.Errorf("invalid match_mode: %d", int(cfg.MatchMode))
	}

	if err := validateComponents(cfg.Components); err != nil {
		return fmt.Errorf("components: %w", err)
	}
	if err := validateSolver(&cfg.Solver); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := validateTarget(&cfg.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}

	return nil
}

func validateSimulator(sim *Simulator) error {
	if strings.TrimSpace(sim.Executable) == "" {
		return fmt.Errorf("executable is required")
	}

	interval, err := sim.Poll.GetInterval()
	if err != nil {
		return fmt.Errorf("invalid poll interval: %w", err)
	}
	maxInterval, err := sim.Poll.GetMaxInterval()
	if err != nil {
		return fmt.Errorf("invalid poll max_interval: %w", err)
	}
	if maxInterval != 0 && maxInterval < interval {
		return fmt.Errorf("poll max_interval %v is shorter than interval %v", maxInterval, interval)
	}
	if _, err := utils.PollFromConfig(sim.Poll.Strategy, interval, maxInterval); err != nil {
		return err
	}

	settle, err := sim.GetSettle()
	if err != nil {
		return fmt.Errorf("invalid settle: %w", err)
	}
	if settle < 0 {
		return fmt.Errorf("settle cannot be negative")
	}
	timeout, err := sim.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func validateComponents(components []Component) error {
	if len(components) == 0 {
		return fmt.Errorf("at least one component must be defined")
	}
	seen := make(map[string]bool, len(components))
	for i, c := range components {
		name := strings.TrimSpace(c.Instance)
		if name == "" {
			return fmt.Errorf("component %d: instance cannot be empty", i)
		}
		key := strings.ToUpper(name)
		if seen[key] {
			return fmt.Errorf("duplicate component instance: %s", name)
		}
		seen[key] = true
		if c.Min <= 0 {
			return fmt.Errorf("component %s: min must be positive", name)
		}
		if c.Max < c.Min {
			return fmt.Errorf("component %s: max (%g) cannot be less than min (%g)", name, c.Max, c.Min)
		}
		if !c.Series.Valid() {
			return fmt.Errorf("component %s: series is required", name)
		}
	}
	return nil
}

func validateSolver(s *Solver) error {
	if s.DiffStep < 0 || s.FTol < 0 || s.XTol < 0 || s.GTol < 0 {
		return fmt.Errorf("diff_step and tolerances cannot be negative")
	}
	if s.MaxEvaluations < 0 {
		return fmt.Errorf("max_evaluations cannot be negative")
	}
	return nil
}

func validateTarget(t *Target) error {
	hasPoints := len(t.Points) > 0
	hasCSV := strings.TrimSpace(t.CSV) != ""
	if hasPoints == hasCSV {
		return fmt.Errorf("exactly one of points or csv must be given")
	}
	for i, p := range t.Points {
		if p.FrequencyHz <= 0 {
			return fmt.Errorf("point %d: frequency_hz must be positive", i)
		}
		if p.Weight != nil && *p.Weight < 0 {
			return fmt.Errorf("point %d: weight cannot be negative", i)
		}
	}
	for i, b := range t.Bands {
		if b.ToHz < b.FromHz {
			return fmt.Errorf("band %d: to_hz cannot be less than from_hz", i)
		}
		if b.Factor < 0 {
			return fmt.Errorf("band %d: factor cannot be negative", i)
		}
		switch b.Segment {
		case "", "amplitude", "phase":
		default:
			return fmt.Errorf("band %d: unknown segment %s (must be amplitude or phase)", i, b.Segment)
		}
	}
	return nil
}
