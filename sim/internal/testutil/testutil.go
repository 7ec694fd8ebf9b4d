// Package testutil provides shared test infrastructure for the scheduler simulator.
// It consolidates trace-log and clock assertion helpers used across
// sim/, sim/trace/ and sim/proc/ test packages.
package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/viant/afs"
)

// MemURL returns a unique in-memory afs URL for the running test.
func MemURL(t *testing.T, name string) string {
	t.Helper()
	return "mem://localhost/" + strings.ReplaceAll(t.Name(), "/", "_") + "/" + name
}

// ReadLines downloads url and splits it into lines, dropping the trailing empty line.
func ReadLines(t *testing.T, fs afs.Service, url string) []string {
	t.Helper()
	data, err := fs.DownloadWithURL(context.Background(), url)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", url, err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// AssertNormalized fails the test unless nanoseconds is in [0, 1e9) and seconds is non-negative.
func AssertNormalized(t *testing.T, name string, seconds, nanoseconds int64) {
	t.Helper()
	if seconds < 0 {
		t.Errorf("%s: seconds=%d is negative", name, seconds)
	}
	if nanoseconds < 0 || nanoseconds >= 1_000_000_000 {
		t.Errorf("%s: nanoseconds=%d outside [0, 1e9)", name, nanoseconds)
	}
}
