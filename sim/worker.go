package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oss-sim/oss-sim/sim/trace"
)

// WorkerState is a worker's position in its lifecycle: Starting → Looping → Terminating.
type WorkerState int

const (
	StateStarting WorkerState = iota
	StateLooping
	StateTerminating
)

func (s WorkerState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateLooping:
		return "looping"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}

// Lifetime is the maximum logical time a worker stays alive, relative to its start.
type Lifetime struct {
	Seconds     int64
	Nanoseconds int64
}

// Validate rejects negative components.
func (l Lifetime) Validate() error {
	if l.Seconds < 0 || l.Nanoseconds < 0 {
		return fmt.Errorf("%w: seconds=%d nanoseconds=%d must be non-negative", ErrInvalidLifetime, l.Seconds, l.Nanoseconds)
	}
	return nil
}

// WorkerLink is what a worker needs from its transport: ticks in, replies out.
// *Endpoint implements it in-process; sim/proc implements it over pipes.
type WorkerLink interface {
	NextTick(ctx context.Context) (TickMessage, error)
	Reply(ctx context.Context, reply ReplyMessage) error
}

// Worker is the deadline state machine that runs inside each worker unit.
// A Worker is owned by exactly one goroutine and is never shared with the coordinator.
type Worker struct {
	Handle     WorkerHandle
	Parent     int       // coordinator PID, for trace records
	Start      Timestamp // clock snapshot taken at launch
	Deadline   Timestamp // Start + lifetime, fixed for the worker's life
	Iterations int       // non-terminal replies sent so far

	state WorkerState
}

// NewWorker computes the worker's absolute deadline from its start snapshot.
// Returns ErrInvalidLifetime for negative parameters.
func NewWorker(handle WorkerHandle, parent int, start Timestamp, lifetime Lifetime) (*Worker, error) {
	if err := lifetime.Validate(); err != nil {
		return nil, err
	}
	return &Worker{
		Handle:   handle,
		Parent:   parent,
		Start:    start,
		Deadline: start.Add(Timestamp{Seconds: lifetime.Seconds, Nanoseconds: lifetime.Nanoseconds}),
		state:    StateStarting,
	}, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState { return w.state }

// Startup moves the worker into Looping and returns its startup record.
func (w *Worker) Startup() trace.Record {
	if w.state != StateStarting {
		panic(fmt.Sprintf("worker %d: startup in state %s", w.Handle.PID, w.state))
	}
	w.state = StateLooping
	return w.record(trace.KindStartup, w.Start)
}

// HandleTick decides the reply for a tick observed at clock.
// The deadline is reached iff clock is at or after it; reaching it moves the worker to Terminating.
func (w *Worker) HandleTick(clock Timestamp) (int, trace.Record) {
	if w.state != StateLooping {
		panic(fmt.Sprintf("worker %d: tick in state %s", w.Handle.PID, w.state))
	}
	if clock.AtOrAfter(w.Deadline) {
		w.state = StateTerminating
		return ReplyTerminating, w.record(trace.KindTerminating, clock)
	}
	w.Iterations++
	return ReplyContinue, w.record(trace.KindIteration, clock)
}

func (w *Worker) record(kind trace.Kind, clock Timestamp) trace.Record {
	return trace.Record{
		Kind:        kind,
		Worker:      w.Handle.PID,
		Seconds:     clock.Seconds,
		Nanoseconds: clock.Nanoseconds,
		Extra: trace.Extra{
			Parent:          w.Parent,
			TermSeconds:     w.Deadline.Seconds,
			TermNanoseconds: w.Deadline.Nanoseconds,
			Iterations:      w.Iterations,
		},
	}
}

// RunWorker drives a started worker until it sends its terminal reply.
// The trace record for a tick is emitted before the reply, so the coordinator
// never observes a reply whose record is still in flight.
func RunWorker(ctx context.Context, w *Worker, link WorkerLink, sink trace.Sink) error {
	for w.state == StateLooping {
		tick, err := link.NextTick(ctx)
		if err != nil {
			return fmt.Errorf("worker %d waiting for tick: %w", w.Handle.PID, err)
		}
		payload, rec := w.HandleTick(tick.Clock)
		sink.Record(rec)
		if err := link.Reply(ctx, ReplyMessage{From: w.Handle, Payload: payload}); err != nil {
			return fmt.Errorf("worker %d replying: %w", w.Handle.PID, err)
		}
	}
	logrus.Debugf("worker %d terminating after %d iterations (deadline %s)", w.Handle.PID, w.Iterations, w.Deadline)
	return nil
}
