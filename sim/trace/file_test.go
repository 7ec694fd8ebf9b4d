package trace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/oss-sim/oss-sim/sim/internal/testutil"
)

func TestFormat_WorkerLines(t *testing.T) {
	extra := Extra{Parent: 100, TermSeconds: 11, TermNanoseconds: 100, Iterations: 4}
	tests := []struct {
		kind Kind
		want string
	}{
		{KindStartup, "WORKER PID:7 PPID:100 SysClockS:6 SysClockNano:250000000 TermTimeS:11 TermTimeNano:100 --Just Starting\n"},
		{KindIteration, "WORKER PID:7 PPID:100 SysClockS:6 SysClockNano:250000000 TermTimeS:11 TermTimeNano:100 --4 iterations have passed since starting\n"},
		{KindTerminating, "WORKER PID:7 SysClockS:6 SysClockNano:250000000 TermTimeS:11 TermTimeNano:100 --Terminating after 4 iterations\n"},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			got := Format(Record{Kind: tc.kind, Worker: 7, Seconds: 6, Nanoseconds: 250_000_000, Extra: extra})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormat_CoordinatorLines(t *testing.T) {
	send := Format(Record{Kind: KindSend, Worker: 7, Seconds: 2, Nanoseconds: 500, Extra: Extra{Slot: 3}})
	assert.Equal(t, "OSS: Sending message to worker 3 PID 7 at time 2:500\n", send)

	recv := Format(Record{Kind: KindReceive, Worker: 7, Seconds: 2, Nanoseconds: 500, Extra: Extra{Slot: 3, Payload: 1}})
	assert.Equal(t, "OSS: Receiving message from worker 3 PID 7 at time 2:500\n", recv)
}

func TestFormat_TableSnapshot(t *testing.T) {
	// GIVEN a two-slot table with slot 1 occupied
	rec := Record{
		Kind:        KindTableSnapshot,
		Worker:      100,
		Seconds:     1,
		Nanoseconds: 250_000_000,
		Extra: Extra{Table: []TableRow{
			{Slot: 0},
			{Slot: 1, Occupied: true, PID: 7, StartSeconds: 0, StartNanoseconds: 750_000_000, MessagesSent: 2},
		}},
	}

	// THEN free slots render as zeros and occupied ones carry their fields
	want := "OSS PID:100 SysClockS:1 SysClockNano:250000000\n" +
		"Process Table:\n" +
		"Entry Occupied PID StartS StartN MessagesSent\n" +
		"0 0 0 0 0 0\n" +
		"1 1 7 0 750000000 2\n"
	assert.Equal(t, want, Format(rec))
}

func TestFormat_UnknownKind(t *testing.T) {
	got := Format(Record{Kind: "bogus", Worker: 1})
	assert.True(t, strings.HasPrefix(got, "UNKNOWN bogus"), got)
}

func TestFileSink_FlushWritesAllLines(t *testing.T) {
	// GIVEN a sink over an in-memory URL
	ctx := context.Background()
	fs := afs.New()
	url := testutil.MemURL(t, "oss.log")
	sink, err := NewFileSink(ctx, fs, url)
	require.NoError(t, err)
	assert.Equal(t, url, sink.URL())

	// WHEN records are written and flushed
	sink.Record(Record{Kind: KindSend, Worker: 1, Extra: Extra{Slot: 0}})
	sink.Record(Record{Kind: KindReceive, Worker: 1, Extra: Extra{Slot: 0, Payload: 1}})
	require.NoError(t, sink.Flush(ctx))

	// THEN the target holds one line per record, in order
	lines := testutil.ReadLines(t, fs, url)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Sending message to worker 0 PID 1")
	assert.Contains(t, lines[1], "Receiving message from worker 0 PID 1")
}

func TestNewFileSink_TruncatesExistingTarget(t *testing.T) {
	// GIVEN a target that already holds a previous run's output
	ctx := context.Background()
	fs := afs.New()
	url := testutil.MemURL(t, "oss.log")
	require.NoError(t, fs.Upload(ctx, url, 0o644, strings.NewReader("stale line\n")))

	// WHEN a new sink is opened on it
	_, err := NewFileSink(ctx, fs, url)
	require.NoError(t, err)

	// THEN the target is empty
	assert.Empty(t, testutil.ReadLines(t, fs, url))
}

func TestNewFileSink_LocalPathBecomesFileURL(t *testing.T) {
	sink, err := NewFileSink(context.Background(), afs.New(), t.TempDir()+"/oss.log")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sink.URL(), "file://"), sink.URL())
}

func TestNewFileSink_EmptyTarget(t *testing.T) {
	_, err := NewFileSink(context.Background(), afs.New(), "")
	assert.Error(t, err)
}

func TestFileSink_TableSnapshots_WriteWithoutFlush(t *testing.T) {
	// GIVEN a sink that writes itself out every second table snapshot
	ctx := context.Background()
	fs := afs.New()
	url := testutil.MemURL(t, "oss.log")
	sink, err := NewFileSink(ctx, fs, url)
	require.NoError(t, err)
	sink.flushEvery = 2

	// WHEN a worker line and one snapshot are recorded
	sink.Record(Record{Kind: KindSend, Worker: 1})
	sink.Record(Record{Kind: KindTableSnapshot, Worker: 9})

	// THEN nothing has been written yet
	assert.Empty(t, testutil.ReadLines(t, fs, url))

	// WHEN a second snapshot is recorded, still without Flush
	sink.Record(Record{Kind: KindTableSnapshot, Worker: 9})

	// THEN everything so far is on the target
	lines := testutil.ReadLines(t, fs, url)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "Sending message to worker 0 PID 1")
	assert.Equal(t, 2, strings.Count(strings.Join(lines, "\n"), "Process Table:"))
}
