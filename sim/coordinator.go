package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oss-sim/oss-sim/sim/telemetry"
	"github.com/oss-sim/oss-sim/sim/trace"
)

// TableEventKind distinguishes admissions from releases in a run's history.
type TableEventKind string

const (
	TableAdmit   TableEventKind = "admit"
	TableRelease TableEventKind = "release"
)

// TableEvent records one process-table transition.
type TableEvent struct {
	Kind         TableEventKind
	Slot         int
	Worker       WorkerHandle
	Clock        Timestamp
	Interactions int // at release; 0 for admissions
}

// Result summarizes a finished (or aborted) run.
type Result struct {
	RunID          uuid.UUID
	Iterations     int
	Launched       int
	Completed      int
	LaunchFailures int
	MaxConcurrent  int
	FinalClock     Timestamp
	History        []TableEvent
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLauncher replaces the default goroutine launcher.
func WithLauncher(factory LauncherFactory) Option {
	return func(c *Coordinator) { c.factory = factory }
}

// WithMetrics records into m instead of a fresh Metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithParentPID overrides the PID reported as the workers' parent.
func WithParentPID(pid int) Option {
	return func(c *Coordinator) { c.parent = pid }
}

// Coordinator is the scheduling loop. It exclusively owns the logical clock and the process table;
// all of its methods must be called from a single goroutine.
type Coordinator struct {
	cfg     Config
	key     SimulationKey
	parent  int
	factory LauncherFactory

	clock     *LogicalClock
	table     *ProcessTable
	channel   *SyncChannel
	launcher  Launcher
	sink      trace.Sink
	lifetimes *rand.Rand
	metrics   *Metrics

	launched       int
	active         int
	completed      int
	iterations     int
	maxConcurrent  int
	launchFailures int // consecutive
	totalFailures  int
	admittedOnce   bool
	lastAdmission  Timestamp
	history        []TableEvent
}

// New validates cfg and acquires the channel and launcher.
// Acquisition failures wrap ErrResourceAcquisition; anything acquired so far is released.
func New(cfg Config, sink trace.Sink, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: no trace sink", ErrResourceAcquisition)
	}
	c := &Coordinator{
		cfg:     cfg,
		key:     NewSimulationKey(cfg.Seed),
		parent:  os.Getpid(),
		factory: NewGoroutineLauncher,
		sink:    sink,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.clock = NewLogicalClock()
	c.table = NewProcessTable(cfg.TableCapacity)
	c.lifetimes = NewPartitionedRNG(c.key).ForSubsystem(SubsystemLifetimes)
	if c.metrics == nil {
		c.metrics = NewMetrics(c.RunID().String())
	}

	c.channel = NewSyncChannel()
	launcher, err := c.factory(c.channel, sink, c.parent)
	if err != nil {
		c.channel.Close()
		return nil, fmt.Errorf("%w: launcher: %v", ErrResourceAcquisition, err)
	}
	c.launcher = launcher
	return c, nil
}

// RunID identifies this run; stable for a given seed.
func (c *Coordinator) RunID() uuid.UUID { return c.key.RunID() }

// Now returns the current logical time.
func (c *Coordinator) Now() Timestamp { return c.clock.Now() }

// Active returns the number of live workers.
func (c *Coordinator) Active() int { return c.active }

// Launched returns the number of workers admitted so far.
func (c *Coordinator) Launched() int { return c.launched }

// Metrics returns the collectors the coordinator records into.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Done reports whether every worker has been launched and reaped.
func (c *Coordinator) Done() bool {
	return c.launched == c.cfg.MaxWorkers && c.active == 0
}

// Run loops until Done, ctx is cancelled, the safety timeout fires, or a fatal error occurs.
// On any abort every live worker is killed; the channel is closed and the sink flushed either way.
func (c *Coordinator) Run(ctx context.Context) (res *Result, err error) {
	if c.cfg.SafetyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SafetyTimeout)
		defer cancel()
	}
	ctx, span := telemetry.StartSpan(ctx, "coordinator.run")
	span.SetString("run_id", c.RunID().String()).
		SetInt("max_workers", int64(c.cfg.MaxWorkers)).
		SetInt("concurrency_limit", int64(c.cfg.ConcurrencyLimit))
	defer func() { telemetry.EndSpan(span, err) }()

	logrus.Infof("[run %s] starting: max workers=%d, concurrency=%d, max lifetime=%ds",
		c.RunID(), c.cfg.MaxWorkers, c.cfg.ConcurrencyLimit, c.cfg.MaxLifetimeSeconds)

	for !c.Done() {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = c.Step(ctx); err != nil {
			break
		}
		if c.cfg.Pace > 0 {
			select {
			case <-time.After(c.cfg.Pace):
			case <-ctx.Done():
			}
		}
	}

	if err != nil {
		logrus.Errorf("[clock %s] aborting run: %v", c.clock.Now(), err)
		c.abort()
	}
	if ferr := c.shutdown(); ferr != nil && err == nil {
		err = ferr
	}
	span.SetInt("iterations", int64(c.iterations)).SetInt("completed", int64(c.completed))
	logrus.Infof("[clock %s] run ended: %d launched, %d completed, %d iterations",
		c.clock.Now(), c.launched, c.completed, c.iterations)
	return c.result(), err
}

// Step runs one loop iteration: advance the clock, maybe admit a worker, tick every live worker
// in slot order, then emit a process-table snapshot.
func (c *Coordinator) Step(ctx context.Context) error {
	now := c.clock.Advance(c.active)
	c.metrics.observeClock(now)

	if c.shouldAdmit(now) {
		if err := c.admit(ctx, now); err != nil {
			return err
		}
	}

	for _, slot := range c.table.OccupiedSlots() {
		if err := c.exchange(ctx, slot); err != nil {
			return err
		}
	}

	c.iterations++
	c.sink.Record(trace.Record{
		Kind:        trace.KindTableSnapshot,
		Worker:      c.parent,
		Seconds:     now.Seconds,
		Nanoseconds: now.Nanoseconds,
		Extra:       trace.Extra{Table: c.table.Rows()},
	})
	return nil
}

// shouldAdmit applies the admission policy: room under both limits, and at least
// LaunchIntervalMillis of logical time since the previous admission.
func (c *Coordinator) shouldAdmit(now Timestamp) bool {
	if c.launched >= c.cfg.MaxWorkers || c.active >= c.cfg.ConcurrencyLimit {
		return false
	}
	if !c.admittedOnce {
		return true
	}
	return now.AtOrAfter(c.lastAdmission.Add(FromMillis(c.cfg.LaunchIntervalMillis)))
}

func (c *Coordinator) admit(ctx context.Context, now Timestamp) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "coordinator.admit")
	defer func() { telemetry.EndSpan(span, err) }()

	lifetime := DrawLifetime(c.lifetimes, c.cfg.MaxLifetimeSeconds)
	worker, lerr := c.launcher.Launch(ctx, LaunchSpec{Lifetime: lifetime, Clock: now})
	if lerr != nil {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("launch interrupted: %w", cerr)
		}
		if !errors.Is(lerr, ErrLaunchFailure) {
			lerr = fmt.Errorf("%w: %v", ErrLaunchFailure, lerr)
		}
		c.launchFailures++
		c.totalFailures++
		c.metrics.LaunchFailures.Inc()
		if c.launchFailures >= c.cfg.MaxLaunchFailures {
			return fmt.Errorf("giving up after %d consecutive launch failures: %w", c.launchFailures, lerr)
		}
		logrus.Warnf("[clock %s] launch failed (%d/%d), retrying next tick: %v",
			now, c.launchFailures, c.cfg.MaxLaunchFailures, lerr)
		span.SetString("launch_error", lerr.Error())
		return nil
	}

	slot, err := c.table.Admit(worker, now)
	if err != nil {
		if kerr := c.launcher.Kill(worker); kerr != nil {
			logrus.Warnf("killing unadmitted %s: %v", worker, kerr)
		}
		c.channel.Forget(worker)
		return err
	}

	c.launchFailures = 0
	c.launched++
	c.active++
	c.admittedOnce = true
	c.lastAdmission = now
	c.maxConcurrent = max(c.maxConcurrent, c.active)
	c.history = append(c.history, TableEvent{Kind: TableAdmit, Slot: slot, Worker: worker, Clock: now})
	c.metrics.Launched.Inc()
	c.metrics.ActiveWorkers.Set(float64(c.active))
	span.SetInt("pid", int64(worker.PID)).SetInt("slot", int64(slot))

	logrus.Infof("[clock %s] admitted %s into slot %d (lifetime %d.%09ds)",
		now, worker, slot, lifetime.Seconds, lifetime.Nanoseconds)
	return nil
}

// exchange runs one tick/reply round trip with the worker in slot.
func (c *Coordinator) exchange(ctx context.Context, slot int) error {
	worker := c.table.Entry(slot).Worker
	now := c.clock.Now()

	c.sink.Record(c.exchangeRecord(trace.KindSend, worker, slot, 0))
	if err := c.channel.SendTick(ctx, TickMessage{Worker: worker, Clock: now}); err != nil {
		return fmt.Errorf("sending tick to %s: %w", worker, err)
	}
	reply, err := c.channel.AwaitReply(ctx, worker)
	if err != nil {
		return fmt.Errorf("awaiting reply from %s: %w", worker, err)
	}
	if reply.From != worker {
		return &ProtocolViolationError{Worker: worker, From: reply.From, Payload: reply.Payload}
	}
	c.sink.Record(c.exchangeRecord(trace.KindReceive, worker, slot, reply.Payload))

	switch reply.Payload {
	case ReplyContinue:
		c.table.RecordInteraction(slot)
		c.metrics.Exchanges.WithLabelValues("continue").Inc()
		logrus.Debugf("[clock %s] %s in slot %d continues", now, worker, slot)
		return nil
	case ReplyTerminating:
		c.metrics.Exchanges.WithLabelValues("terminating").Inc()
		return c.reap(ctx, slot)
	default:
		return &ProtocolViolationError{Worker: worker, From: reply.From, Payload: reply.Payload}
	}
}

// reap waits for a terminating worker to exit and frees its slot.
func (c *Coordinator) reap(ctx context.Context, slot int) (err error) {
	worker := c.table.Entry(slot).Worker
	ctx, span := telemetry.StartSpan(ctx, "coordinator.reap")
	span.SetInt("pid", int64(worker.PID)).SetInt("slot", int64(slot))
	defer func() { telemetry.EndSpan(span, err) }()

	if exitErr := c.launcher.AwaitExit(ctx, worker); exitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("awaiting exit of %s: %w", worker, ctxErr)
		}
		logrus.Warnf("%s exited uncleanly: %v", worker, exitErr)
		span.SetString("exit_error", exitErr.Error())
	}

	now := c.clock.Now()
	released := c.table.Release(slot)
	c.channel.Forget(worker)
	c.active--
	c.completed++
	c.history = append(c.history, TableEvent{
		Kind:         TableRelease,
		Slot:         slot,
		Worker:       worker,
		Clock:        now,
		Interactions: released.Interactions,
	})
	c.metrics.observeRelease(released, now)
	c.metrics.ActiveWorkers.Set(float64(c.active))

	logrus.Infof("[clock %s] reaped %s from slot %d after %d interactions", now, worker, slot, released.Interactions)
	return nil
}

func (c *Coordinator) exchangeRecord(kind trace.Kind, worker WorkerHandle, slot, payload int) trace.Record {
	now := c.clock.Now()
	return trace.Record{
		Kind:        kind,
		Worker:      worker.PID,
		Seconds:     now.Seconds,
		Nanoseconds: now.Nanoseconds,
		Extra:       trace.Extra{Slot: slot, Payload: payload},
	}
}

// abort kills every worker still holding a slot. In-flight exchanges are abandoned.
func (c *Coordinator) abort() {
	for _, slot := range c.table.OccupiedSlots() {
		worker := c.table.Entry(slot).Worker
		if err := c.launcher.Kill(worker); err != nil {
			logrus.Warnf("killing %s in slot %d: %v", worker, slot, err)
		}
	}
}

// shutdown closes the channel and flushes the sink.
func (c *Coordinator) shutdown() error {
	c.channel.Close()
	f, ok := c.sink.(trace.Flusher)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		return fmt.Errorf("flushing trace output: %w", err)
	}
	return nil
}

func (c *Coordinator) result() *Result {
	return &Result{
		RunID:          c.RunID(),
		Iterations:     c.iterations,
		Launched:       c.launched,
		Completed:      c.completed,
		LaunchFailures: c.totalFailures,
		MaxConcurrent:  c.maxConcurrent,
		FinalClock:     c.clock.Now(),
		History:        append([]TableEvent(nil), c.history...),
	}
}
