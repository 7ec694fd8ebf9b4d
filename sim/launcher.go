package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oss-sim/oss-sim/sim/trace"
)

// LaunchSpec carries what a new worker unit needs: its lifetime parameters and the
// clock snapshot it computes its deadline from.
type LaunchSpec struct {
	Lifetime Lifetime
	Clock    Timestamp
}

// Launcher starts, awaits and kills worker units.
type Launcher interface {
	// Launch starts a unit and returns once it has computed its deadline and emitted its startup record.
	// Failures wrap ErrLaunchFailure.
	Launch(ctx context.Context, spec LaunchSpec) (WorkerHandle, error)
	// AwaitExit blocks until the unit has fully terminated.
	AwaitExit(ctx context.Context, worker WorkerHandle) error
	// Kill terminates the unit without waiting for it.
	Kill(worker WorkerHandle) error
}

// LauncherFactory builds a Launcher wired to the coordinator's channel and trace sink.
// parent is the coordinator's PID, reported in worker trace records.
type LauncherFactory func(channel *SyncChannel, sink trace.Sink, parent int) (Launcher, error)

// GoroutineLauncher runs each worker unit as a goroutine behind a SyncChannel endpoint.
// Handles are synthetic PIDs counting up from 1.
type GoroutineLauncher struct {
	channel *SyncChannel
	sink    trace.Sink
	parent  int

	mu      sync.Mutex
	nextPID int
	units   map[int]*goroutineUnit
}

type goroutineUnit struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewGoroutineLauncher is a LauncherFactory.
func NewGoroutineLauncher(channel *SyncChannel, sink trace.Sink, parent int) (Launcher, error) {
	return &GoroutineLauncher{
		channel: channel,
		sink:    sink,
		parent:  parent,
		nextPID: 1,
		units:   make(map[int]*goroutineUnit),
	}, nil
}

func (l *GoroutineLauncher) Launch(_ context.Context, spec LaunchSpec) (WorkerHandle, error) {
	l.mu.Lock()
	handle := WorkerHandle{PID: l.nextPID}
	l.nextPID++
	l.mu.Unlock()

	w, err := NewWorker(handle, l.parent, spec.Clock, spec.Lifetime)
	if err != nil {
		return WorkerHandle{}, fmt.Errorf("%w: %w", ErrLaunchFailure, err)
	}
	ep, err := l.channel.Open(handle)
	if err != nil {
		return WorkerHandle{}, fmt.Errorf("%w: %w", ErrLaunchFailure, err)
	}
	l.sink.Record(w.Startup())

	// The unit outlives the Launch call; only Kill or channel teardown stops it early.
	ctx, cancel := context.WithCancel(context.Background())
	u := &goroutineUnit{cancel: cancel, done: make(chan struct{})}
	l.mu.Lock()
	l.units[handle.PID] = u
	l.mu.Unlock()

	go func() {
		defer close(u.done)
		defer cancel()
		u.err = RunWorker(ctx, w, ep, l.sink)
		if u.err != nil {
			logrus.Debugf("%s exited: %v", handle, u.err)
		}
	}()
	return handle, nil
}

func (l *GoroutineLauncher) AwaitExit(ctx context.Context, worker WorkerHandle) error {
	u, err := l.unit(worker)
	if err != nil {
		return err
	}
	select {
	case <-u.done:
		l.mu.Lock()
		delete(l.units, worker.PID)
		l.mu.Unlock()
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *GoroutineLauncher) Kill(worker WorkerHandle) error {
	u, err := l.unit(worker)
	if err != nil {
		return err
	}
	u.cancel()
	return nil
}

func (l *GoroutineLauncher) unit(worker WorkerHandle) (*goroutineUnit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.units[worker.PID]
	if !ok {
		return nil, fmt.Errorf("unknown %s", worker)
	}
	return u, nil
}
