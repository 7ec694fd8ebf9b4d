package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/viant/afs"

	sim "github.com/oss-sim/oss-sim/sim"
	"github.com/oss-sim/oss-sim/sim/proc"
	"github.com/oss-sim/oss-sim/sim/telemetry"
	"github.com/oss-sim/oss-sim/sim/trace"
)

// version is reported on spans.
const version = "0.1.0"

var (
	// CLI flags for the coordinator
	numProcs      int           // Total workers to launch (-n)
	simul         int           // Max simultaneously live workers (-s)
	timeLimit     int64         // Upper bound of the per-worker lifetime draw, logical seconds (-t)
	interval      int64         // Min logical milliseconds between launches (-i)
	logFile       string        // Trace log target (-f)
	seed          int64         // Seed for lifetime draws
	logLevel      string        // Log verbosity level
	configPath    string        // Optional YAML config file
	safetyTimeout time.Duration // Wall-clock bound on the run
	pace          time.Duration // Real sleep between iterations
	launcherName  string        // goroutine | process
	otelOutput    string        // OpenTelemetry span output ("" disables)
	metricsOutput string        // Prometheus text dump target ("" disables, "-" stdout)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "oss-sim",
	Short: "Discrete-event simulator of an operating system process scheduler",
}

// runCmd executes the simulation using parameters from the config file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler simulation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := runSimulation(cmd.Context(), cfg, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// resolveConfig layers defaults, the optional config file, and explicitly set flags.
func resolveConfig(cmd *cobra.Command) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if configPath != "" {
		fc, err := loadFileConfig(configPath)
		if err != nil {
			return cfg, err
		}
		fc.apply(&cfg)
	}

	flags := cmd.Flags()
	if flags.Changed("proc") {
		cfg.MaxWorkers = numProcs
	}
	if flags.Changed("simul") {
		cfg.ConcurrencyLimit = simul
	}
	if flags.Changed("time-limit") {
		cfg.MaxLifetimeSeconds = timeLimit
	}
	if flags.Changed("interval") {
		cfg.LaunchIntervalMillis = interval
	}
	if flags.Changed("logfile") {
		cfg.TraceOutput = logFile
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("timeout") {
		cfg.SafetyTimeout = safetyTimeout
	}
	if flags.Changed("pace") {
		cfg.Pace = pace
	}
	if flags.Changed("launcher") {
		cfg.Launcher = launcherName
	}
	return cfg, cfg.Validate()
}

// runSimulation acquires the trace sink, runs the coordinator and prints the summary to out.
func runSimulation(ctx context.Context, cfg sim.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if otelOutput != "" {
		if err := telemetry.Init("oss-sim", version, otelOutput); err != nil {
			return fmt.Errorf("%w: span exporter: %v", sim.ErrResourceAcquisition, err)
		}
		defer func() {
			if err := telemetry.Shutdown(context.Background()); err != nil {
				logrus.Warnf("flushing spans: %v", err)
			}
		}()
	}

	fileSink, err := trace.NewFileSink(ctx, afs.New(), cfg.TraceOutput)
	if err != nil {
		return fmt.Errorf("%w: %v", sim.ErrResourceAcquisition, err)
	}
	collected := trace.NewSimulationTrace()
	sink := trace.Tee{fileSink, collected}

	opts := []sim.Option{}
	if cfg.Launcher == sim.LauncherProcess {
		factory, err := selfWorkerFactory()
		if err != nil {
			return fmt.Errorf("%w: %v", sim.ErrResourceAcquisition, err)
		}
		opts = append(opts, sim.WithLauncher(factory))
	}

	coordinator, err := sim.New(cfg, sink, opts...)
	if err != nil {
		return err
	}
	startTime := time.Now()
	res, runErr := coordinator.Run(ctx)
	printSummary(out, res, trace.Summarize(collected), fileSink.URL(), time.Since(startTime))

	if metricsOutput != "" {
		if err := writeMetrics(coordinator.Metrics(), metricsOutput, out); err != nil {
			logrus.Warnf("writing metrics: %v", err)
		}
	}
	return runErr
}

// selfWorkerFactory launches workers by re-executing this binary's worker command.
func selfWorkerFactory() (sim.LauncherFactory, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	return proc.NewFactory(proc.Command{Path: exe, Args: []string{workerCmd.Name()}}), nil
}

func printSummary(out io.Writer, res *sim.Result, summary *trace.TraceSummary, traceURL string, wall time.Duration) {
	if res == nil {
		return
	}
	fmt.Fprintln(out, "=== Simulation Summary ===")
	fmt.Fprintf(out, "Run ID               : %s\n", res.RunID)
	fmt.Fprintf(out, "Workers Launched     : %d\n", res.Launched)
	fmt.Fprintf(out, "Workers Completed    : %d\n", res.Completed)
	fmt.Fprintf(out, "Launch Failures      : %d\n", res.LaunchFailures)
	fmt.Fprintf(out, "Max Concurrent       : %d\n", res.MaxConcurrent)
	fmt.Fprintf(out, "Iterations           : %d\n", res.Iterations)
	fmt.Fprintf(out, "Final Logical Clock  : %d s %d ns\n", res.FinalClock.Seconds, res.FinalClock.Nanoseconds)
	fmt.Fprintf(out, "Trace Records        : %d\n", summary.TotalRecords)
	fmt.Fprintf(out, "Exchanges            : %d\n", summary.Exchanges)
	fmt.Fprintf(out, "Trace Output         : %s\n", traceURL)
	fmt.Fprintf(out, "Wall Time            : %s\n", wall.Round(time.Millisecond))
}

func writeMetrics(m *sim.Metrics, target string, stdout io.Writer) error {
	if target == "-" {
		return m.WriteText(stdout)
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.WriteText(f)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	defaults := sim.DefaultConfig()

	runCmd.Flags().IntVarP(&numProcs, "proc", "n", defaults.MaxWorkers, "Total number of workers to launch")
	runCmd.Flags().IntVarP(&simul, "simul", "s", defaults.ConcurrencyLimit, "Maximum number of workers running simultaneously")
	runCmd.Flags().Int64VarP(&timeLimit, "time-limit", "t", defaults.MaxLifetimeSeconds, "Upper bound of a worker's lifetime, in logical seconds")
	runCmd.Flags().Int64VarP(&interval, "interval", "i", defaults.LaunchIntervalMillis, "Minimum logical milliseconds between worker launches")
	runCmd.Flags().StringVarP(&logFile, "logfile", "f", defaults.TraceOutput, "Trace log file (local path or afs URL)")
	runCmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Seed for worker lifetime draws")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML config file; explicitly set flags take precedence")
	runCmd.Flags().DurationVar(&safetyTimeout, "timeout", defaults.SafetyTimeout, "Wall-clock safety timeout for the whole run (0 disables)")
	runCmd.Flags().DurationVar(&pace, "pace", defaults.Pace, "Real time to sleep between iterations")
	runCmd.Flags().StringVar(&launcherName, "launcher", defaults.Launcher, "Worker launcher (goroutine, process)")
	runCmd.Flags().StringVar(&otelOutput, "otel-output", "", "Write OpenTelemetry spans to this file (\"-\" for stdout)")
	runCmd.Flags().StringVar(&metricsOutput, "metrics-output", "", "Write Prometheus metrics to this file at exit (\"-\" for stdout)")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
}
