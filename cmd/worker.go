package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	sim "github.com/oss-sim/oss-sim/sim"
	"github.com/oss-sim/oss-sim/sim/proc"
)

// workerCmd is the body of an OS-process worker. It is started by the process launcher,
// not by hand: stdin and stdout carry the coordinator protocol.
var workerCmd = &cobra.Command{
	Use:    "worker <maxSeconds> <maxNanoseconds>",
	Short:  "Run one worker process (started by `run --launcher process`)",
	Hidden: true,
	// Negative arguments must reach lifetime validation instead of being parsed as flags.
	DisableFlagParsing: true,
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		lifetime, err := parseLifetime(args)
		if err != nil {
			return err
		}
		return proc.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), os.Getpid(), os.Getppid(), lifetime)
	},
}

// parseLifetime reads the two positional lifetime arguments.
func parseLifetime(args []string) (sim.Lifetime, error) {
	if len(args) != 2 {
		return sim.Lifetime{}, fmt.Errorf("usage: worker <maxSeconds> <maxNanoseconds>, got %d arguments", len(args))
	}
	sec, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return sim.Lifetime{}, fmt.Errorf("maxSeconds: %w", err)
	}
	nsec, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return sim.Lifetime{}, fmt.Errorf("maxNanoseconds: %w", err)
	}
	lifetime := sim.Lifetime{Seconds: sec, Nanoseconds: nsec}
	return lifetime, lifetime.Validate()
}
