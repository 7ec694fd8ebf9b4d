package sim

import (
	"fmt"
	"time"
)

// Launcher names accepted by Config.Launcher.
const (
	LauncherGoroutine = "goroutine"
	LauncherProcess   = "process"
)

// ValidLaunchers is the set of recognized launcher names. Empty means goroutine.
var ValidLaunchers = map[string]bool{"": true, LauncherGoroutine: true, LauncherProcess: true}

// Config groups the coordinator's parameters.
type Config struct {
	MaxWorkers           int           // total workers to launch over the run (must be > 0)
	ConcurrencyLimit     int           // max simultaneously live workers (must be > 0, ≤ TableCapacity)
	MaxLifetimeSeconds   int64         // upper bound of the per-worker lifetime draw, in logical seconds (must be > 0)
	LaunchIntervalMillis int64         // min logical time between admissions (≥ 0)
	TraceOutput          string        // trace log target: local path or afs URL
	Seed                 int64         // seeds the lifetime draws
	SafetyTimeout        time.Duration // wall-clock bound on the whole run (0 = none)
	Pace                 time.Duration // real sleep per loop iteration (0 = run flat out)
	TableCapacity        int           // process-table slots
	MaxLaunchFailures    int           // consecutive launch failures tolerated before aborting (must be > 0)
	Launcher             string        // "goroutine" (default) or "process"
}

// DefaultConfig returns the defaults of the command line tool.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:           5,
		ConcurrencyLimit:     3,
		MaxLifetimeSeconds:   7,
		LaunchIntervalMillis: 100,
		TraceOutput:          "oss.log",
		Seed:                 42,
		SafetyTimeout:        60 * time.Second,
		TableCapacity:        DefaultTableCapacity,
		MaxLaunchFailures:    3,
		Launcher:             LauncherGoroutine,
	}
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers)
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency limit must be positive, got %d", c.ConcurrencyLimit)
	}
	if c.TableCapacity <= 0 {
		return fmt.Errorf("table capacity must be positive, got %d", c.TableCapacity)
	}
	if c.ConcurrencyLimit > c.TableCapacity {
		return fmt.Errorf("concurrency limit %d exceeds process table capacity %d", c.ConcurrencyLimit, c.TableCapacity)
	}
	if c.MaxLifetimeSeconds <= 0 {
		return fmt.Errorf("max lifetime seconds must be positive, got %d", c.MaxLifetimeSeconds)
	}
	if c.LaunchIntervalMillis < 0 {
		return fmt.Errorf("launch interval must be non-negative, got %d", c.LaunchIntervalMillis)
	}
	if c.SafetyTimeout < 0 {
		return fmt.Errorf("safety timeout must be non-negative, got %s", c.SafetyTimeout)
	}
	if c.Pace < 0 {
		return fmt.Errorf("pace must be non-negative, got %s", c.Pace)
	}
	if c.MaxLaunchFailures <= 0 {
		return fmt.Errorf("max launch failures must be positive, got %d", c.MaxLaunchFailures)
	}
	if !ValidLaunchers[c.Launcher] {
		return fmt.Errorf("unknown launcher %q", c.Launcher)
	}
	return nil
}
