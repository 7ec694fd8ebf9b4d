package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	sim "github.com/oss-sim/oss-sim/sim"
)

// fileConfig is the YAML config file layout. Pointer fields distinguish "absent" from zero,
// so a file may override a subset of the defaults.
// Every key must be listed here to satisfy KnownFields(true) strict parsing.
type fileConfig struct {
	MaxWorkers           *int           `yaml:"max_workers"`
	ConcurrencyLimit     *int           `yaml:"concurrency_limit"`
	MaxLifetimeSeconds   *int64         `yaml:"max_lifetime_seconds"`
	LaunchIntervalMillis *int64         `yaml:"launch_interval_millis"`
	TraceOutput          *string        `yaml:"trace_output"`
	Seed                 *int64         `yaml:"seed"`
	SafetyTimeout        *time.Duration `yaml:"safety_timeout"`
	Pace                 *time.Duration `yaml:"pace"`
	TableCapacity        *int           `yaml:"table_capacity"`
	MaxLaunchFailures    *int           `yaml:"max_launch_failures"`
	Launcher             *string        `yaml:"launcher"`
}

// loadFileConfig parses a YAML config file. Unknown keys are errors so typos do not pass silently.
func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parseFileConfig(data)
}

func parseFileConfig(data []byte) (*fileConfig, error) {
	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return &fc, nil
}

// apply overwrites the fields of cfg that the file sets.
func (fc *fileConfig) apply(cfg *sim.Config) {
	if fc.MaxWorkers != nil {
		cfg.MaxWorkers = *fc.MaxWorkers
	}
	if fc.ConcurrencyLimit != nil {
		cfg.ConcurrencyLimit = *fc.ConcurrencyLimit
	}
	if fc.MaxLifetimeSeconds != nil {
		cfg.MaxLifetimeSeconds = *fc.MaxLifetimeSeconds
	}
	if fc.LaunchIntervalMillis != nil {
		cfg.LaunchIntervalMillis = *fc.LaunchIntervalMillis
	}
	if fc.TraceOutput != nil {
		cfg.TraceOutput = *fc.TraceOutput
	}
	if fc.Seed != nil {
		cfg.Seed = *fc.Seed
	}
	if fc.SafetyTimeout != nil {
		cfg.SafetyTimeout = *fc.SafetyTimeout
	}
	if fc.Pace != nil {
		cfg.Pace = *fc.Pace
	}
	if fc.TableCapacity != nil {
		cfg.TableCapacity = *fc.TableCapacity
	}
	if fc.MaxLaunchFailures != nil {
		cfg.MaxLaunchFailures = *fc.MaxLaunchFailures
	}
	if fc.Launcher != nil {
		cfg.Launcher = *fc.Launcher
	}
}
