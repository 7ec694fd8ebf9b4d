package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/oss-sim/oss-sim/sim"
	"github.com/oss-sim/oss-sim/sim/trace"
)

// Command describes how to start a worker process. The two lifetime arguments are appended to Args.
type Command struct {
	Path string
	Args []string
	Env  []string // appended to the coordinator's environment
}

// Launcher starts one OS process per worker and relays its pipes into the SyncChannel.
type Launcher struct {
	cmd     Command
	channel *sim.SyncChannel
	sink    trace.Sink

	mu    sync.Mutex
	procs map[int]*process
}

type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
	err   error // exit status, valid after done is closed
}

// NewFactory returns a sim.LauncherFactory that starts workers with cmd.
func NewFactory(cmd Command) sim.LauncherFactory {
	return func(channel *sim.SyncChannel, sink trace.Sink, _ int) (sim.Launcher, error) {
		if cmd.Path == "" {
			return nil, fmt.Errorf("worker command path is empty")
		}
		return &Launcher{
			cmd:     cmd,
			channel: channel,
			sink:    sink,
			procs:   make(map[int]*process),
		}, nil
	}
}

// Launch starts the worker process, hands it the start snapshot and waits for its startup record.
func (l *Launcher) Launch(ctx context.Context, spec sim.LaunchSpec) (sim.WorkerHandle, error) {
	args := append(append([]string(nil), l.cmd.Args...),
		strconv.FormatInt(spec.Lifetime.Seconds, 10),
		strconv.FormatInt(spec.Lifetime.Nanoseconds, 10))
	cmd := exec.Command(l.cmd.Path, args...)
	cmd.Env = append(os.Environ(), l.cmd.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return sim.WorkerHandle{}, fmt.Errorf("%w: %v", sim.ErrLaunchFailure, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return sim.WorkerHandle{}, fmt.Errorf("%w: %v", sim.ErrLaunchFailure, err)
	}
	if err := cmd.Start(); err != nil {
		return sim.WorkerHandle{}, fmt.Errorf("%w: %v", sim.ErrLaunchFailure, err)
	}
	handle := sim.WorkerHandle{PID: cmd.Process.Pid}
	p := &process{cmd: cmd, stdin: stdin, done: make(chan struct{})}

	// Until the startup record arrives, cancelling ctx kills the process so the reads below unblock.
	handshake := make(chan struct{})
	defer close(handshake)
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		case <-handshake:
		}
	}()

	fail := func(err error) (sim.WorkerHandle, error) {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return sim.WorkerHandle{}, fmt.Errorf("%w: %s: %w", sim.ErrLaunchFailure, handle, err)
	}

	enc := NewEncoder(stdin)
	dec := NewDecoder(stdout)
	if err := enc.Encode(ClockEnvelope(TypeStart, spec.Clock)); err != nil {
		return fail(err)
	}
	startup, err := dec.Expect(TypeTrace)
	if err != nil {
		return fail(fmt.Errorf("reading startup record: %w", err))
	}
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	ep, err := l.channel.Open(handle)
	if err != nil {
		return fail(err)
	}
	if startup.Record != nil {
		l.sink.Record(*startup.Record)
	}

	l.mu.Lock()
	l.procs[handle.PID] = p
	l.mu.Unlock()

	go l.relayTicks(handle, ep, enc, stdin)
	go l.relayOutput(handle, ep, dec, p)
	return handle, nil
}

// relayTicks forwards ticks from the mailbox to the worker's stdin until the mailbox closes.
func (l *Launcher) relayTicks(handle sim.WorkerHandle, ep *sim.Endpoint, enc *Encoder, stdin io.Closer) {
	defer stdin.Close()
	for {
		tick, err := ep.NextTick(context.Background())
		if err != nil {
			return
		}
		if err := enc.Encode(ClockEnvelope(TypeTick, tick.Clock)); err != nil {
			logrus.Debugf("%s: writing tick: %v", handle, err)
			return
		}
	}
}

// relayOutput routes the worker's stdout: trace records to the sink, replies to the mailbox.
// At end of stream it reaps the process.
func (l *Launcher) relayOutput(handle sim.WorkerHandle, ep *sim.Endpoint, dec *Decoder, p *process) {
	defer close(p.done)
	for {
		env, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.Warnf("%s: reading output: %v", handle, err)
			}
			break
		}
		switch env.Type {
		case TypeTrace:
			if env.Record != nil {
				l.sink.Record(*env.Record)
			}
		case TypeReply:
			payload := -1
			if env.Payload != nil {
				payload = *env.Payload
			}
			reply := sim.ReplyMessage{From: sim.WorkerHandle{PID: env.Worker}, Payload: payload}
			if err := ep.Reply(context.Background(), reply); err != nil {
				logrus.Debugf("%s: dropping reply: %v", handle, err)
			}
		default:
			logrus.Warnf("%s: ignoring %q envelope", handle, env.Type)
		}
	}
	p.err = p.cmd.Wait()
}

func (l *Launcher) AwaitExit(ctx context.Context, worker sim.WorkerHandle) error {
	p, err := l.process(worker)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		l.mu.Lock()
		delete(l.procs, worker.PID)
		l.mu.Unlock()
		if p.err != nil {
			return fmt.Errorf("%s: %w", worker, p.err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill sends SIGTERM, falling back to SIGKILL where signals are unsupported.
func (l *Launcher) Kill(worker sim.WorkerHandle) error {
	p, err := l.process(worker)
	if err != nil {
		return err
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

func (l *Launcher) process(worker sim.WorkerHandle) (*process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.procs[worker.PID]
	if !ok {
		return nil, fmt.Errorf("unknown %s", worker)
	}
	return p, nil
}
