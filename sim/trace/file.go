package trace

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

// snapshotsPerFlush is how many table snapshots the sink buffers before writing itself out.
const snapshotsPerFlush = 32

// FileSink renders records as text lines and writes them to an afs URL.
// Lines are buffered and written out on Flush and after every snapshotsPerFlush table snapshots,
// so a hard-killed run still leaves most of its trace behind. Each write rewrites the whole target.
type FileSink struct {
	fs         afs.Service
	url        string
	flushEvery int

	mu        sync.Mutex
	buf       bytes.Buffer
	snapshots int
	flushErr  error // first failed background write, reported by the next Flush

	upload sync.Mutex // keeps writes in buffer order
}

// NewFileSink truncates target and returns a sink writing to it.
// target may be a plain local path or any URL the afs service understands (file://, mem://, ...).
func NewFileSink(ctx context.Context, fs afs.Service, target string) (*FileSink, error) {
	if target == "" {
		return nil, fmt.Errorf("trace output target is empty")
	}
	url := target
	if !strings.Contains(target, "://") {
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, fmt.Errorf("resolving trace output %s: %w", target, err)
		}
		url = file.Scheme + "://" + abs
	}
	s := &FileSink{fs: fs, url: url, flushEvery: snapshotsPerFlush}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// URL returns the resolved location the sink writes to.
func (s *FileSink) URL() string { return s.url }

// Record appends the text rendering of rec.
func (s *FileSink) Record(rec Record) {
	s.mu.Lock()
	s.buf.WriteString(Format(rec))
	due := false
	if rec.Kind == KindTableSnapshot {
		s.snapshots++
		due = s.flushEvery > 0 && s.snapshots%s.flushEvery == 0
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.write(context.Background()); err != nil {
		s.mu.Lock()
		if s.flushErr == nil {
			s.flushErr = err
		}
		s.mu.Unlock()
	}
}

// Flush writes everything recorded so far to the target.
// It also reports the first error from an earlier periodic write.
func (s *FileSink) Flush(ctx context.Context) error {
	err := s.write(ctx)
	s.mu.Lock()
	pending := s.flushErr
	s.flushErr = nil
	s.mu.Unlock()
	if err == nil {
		err = pending
	}
	return err
}

func (s *FileSink) write(ctx context.Context) error {
	s.upload.Lock()
	defer s.upload.Unlock()
	s.mu.Lock()
	data := append([]byte(nil), s.buf.Bytes()...)
	s.mu.Unlock()
	if err := s.fs.Upload(ctx, s.url, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing trace output %s: %w", s.url, err)
	}
	return nil
}

// Format renders a record in the line format of the trace log. Every rendering ends with a newline.
func Format(r Record) string {
	switch r.Kind {
	case KindStartup:
		return fmt.Sprintf("WORKER PID:%d PPID:%d SysClockS:%d SysClockNano:%d TermTimeS:%d TermTimeNano:%d --Just Starting\n",
			r.Worker, r.Extra.Parent, r.Seconds, r.Nanoseconds, r.Extra.TermSeconds, r.Extra.TermNanoseconds)
	case KindIteration:
		return fmt.Sprintf("WORKER PID:%d PPID:%d SysClockS:%d SysClockNano:%d TermTimeS:%d TermTimeNano:%d --%d iterations have passed since starting\n",
			r.Worker, r.Extra.Parent, r.Seconds, r.Nanoseconds, r.Extra.TermSeconds, r.Extra.TermNanoseconds, r.Extra.Iterations)
	case KindTerminating:
		return fmt.Sprintf("WORKER PID:%d SysClockS:%d SysClockNano:%d TermTimeS:%d TermTimeNano:%d --Terminating after %d iterations\n",
			r.Worker, r.Seconds, r.Nanoseconds, r.Extra.TermSeconds, r.Extra.TermNanoseconds, r.Extra.Iterations)
	case KindSend:
		return fmt.Sprintf("OSS: Sending message to worker %d PID %d at time %d:%d\n",
			r.Extra.Slot, r.Worker, r.Seconds, r.Nanoseconds)
	case KindReceive:
		return fmt.Sprintf("OSS: Receiving message from worker %d PID %d at time %d:%d\n",
			r.Extra.Slot, r.Worker, r.Seconds, r.Nanoseconds)
	case KindTableSnapshot:
		var b strings.Builder
		fmt.Fprintf(&b, "OSS PID:%d SysClockS:%d SysClockNano:%d\n", r.Worker, r.Seconds, r.Nanoseconds)
		b.WriteString("Process Table:\n")
		b.WriteString("Entry Occupied PID StartS StartN MessagesSent\n")
		for _, row := range r.Extra.Table {
			if !row.Occupied {
				fmt.Fprintf(&b, "%d 0 0 0 0 0\n", row.Slot)
				continue
			}
			fmt.Fprintf(&b, "%d 1 %d %d %d %d\n", row.Slot, row.PID, row.StartSeconds, row.StartNanoseconds, row.MessagesSent)
		}
		return b.String()
	default:
		return fmt.Sprintf("UNKNOWN %s PID:%d SysClockS:%d SysClockNano:%d\n", r.Kind, r.Worker, r.Seconds, r.Nanoseconds)
	}
}
