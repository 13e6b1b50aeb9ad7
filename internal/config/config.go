// Package config holds the simulator configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/rfsched/internal/ticks"
)

// SimConfig holds configuration for the rfsim binary.
type SimConfig struct {
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite journal path, "" disables journaling, ":memory:" for testing
	Addr      string `yaml:"addr"`       // Listen address for serve (default ":8090")

	// TickInterval is the wall-clock time between simulated clock steps in serve mode.
	TickInterval time.Duration `yaml:"tick_interval"`
	// TicksPerStep is how far the simulated clock moves per step.
	TicksPerStep uint32 `yaml:"ticks_per_step"`
	// BusBuffer is the per-subscriber buffer of the notification bus.
	BusBuffer int `yaml:"bus_buffer"`

	// Margins overrides individual scheduler margins; zero fields keep the default.
	Margins ticks.Margins `yaml:"margins"`
}

// DefaultSimConfig returns sensible defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":8090",
		TickInterval: 10 * time.Millisecond,
		TicksPerStep: 1000 * ticks.PerMicrosecond,
		BusBuffer:    256,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (SimConfig, error) {
	cfg := DefaultSimConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that have no usable zero value.
func (c SimConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0")
	}
	if c.TicksPerStep == 0 {
		return fmt.Errorf("ticks_per_step must be > 0")
	}
	if err := c.EffectiveMargins().Validate(); err != nil {
		return fmt.Errorf("margins: %w", err)
	}
	return nil
}

// EffectiveMargins returns the default margins with the configured overrides applied.
func (c SimConfig) EffectiveMargins() ticks.Margins {
	return ticks.DefaultMargins().Merge(c.Margins)
}
