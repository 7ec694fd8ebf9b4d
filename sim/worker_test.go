package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-sim/oss-sim/sim/trace"
)

func TestNewWorker_DeadlineFromStart(t *testing.T) {
	w, err := NewWorker(WorkerHandle{PID: 3}, 100, Timestamp{6, 100}, Lifetime{Seconds: 5})
	require.NoError(t, err)
	assert.Equal(t, Timestamp{11, 100}, w.Deadline)
	assert.Equal(t, StateStarting, w.State())
}

func TestNewWorker_NegativeLifetime_Rejected(t *testing.T) {
	for _, lt := range []Lifetime{{Seconds: -1}, {Nanoseconds: -1}, {Seconds: -3, Nanoseconds: -3}} {
		_, err := NewWorker(WorkerHandle{PID: 1}, 0, Timestamp{}, lt)
		assert.ErrorIs(t, err, ErrInvalidLifetime, "lifetime %+v", lt)
	}
}

func TestWorker_StateMachine(t *testing.T) {
	// GIVEN a worker started at 0:0 with a one-second lifetime
	w, err := NewWorker(WorkerHandle{PID: 7}, 100, Timestamp{}, Lifetime{Seconds: 1})
	require.NoError(t, err)

	// WHEN it starts up
	rec := w.Startup()

	// THEN it is looping and its startup record carries the deadline
	assert.Equal(t, StateLooping, w.State())
	assert.Equal(t, trace.KindStartup, rec.Kind)
	assert.Equal(t, 100, rec.Extra.Parent)
	assert.Equal(t, int64(1), rec.Extra.TermSeconds)

	// WHEN ticked before the deadline
	payload, rec := w.HandleTick(Timestamp{0, 999_999_999})

	// THEN it continues and counts the iteration
	assert.Equal(t, ReplyContinue, payload)
	assert.Equal(t, trace.KindIteration, rec.Kind)
	assert.Equal(t, 1, rec.Extra.Iterations)

	// WHEN ticked exactly at the deadline
	payload, rec = w.HandleTick(Timestamp{1, 0})

	// THEN it terminates without counting another iteration
	assert.Equal(t, ReplyTerminating, payload)
	assert.Equal(t, trace.KindTerminating, rec.Kind)
	assert.Equal(t, 1, rec.Extra.Iterations)
	assert.Equal(t, StateTerminating, w.State())

	// AND further ticks are a logic error
	assert.Panics(t, func() { w.HandleTick(Timestamp{2, 0}) })
	assert.Panics(t, func() { w.Startup() })
}

func TestWorker_ZeroLifetime_TerminatesOnFirstTick(t *testing.T) {
	start := Timestamp{Seconds: 3, Nanoseconds: 250_000_000}
	w, err := NewWorker(WorkerHandle{PID: 1}, 0, start, Lifetime{})
	require.NoError(t, err)
	w.Startup()

	payload, rec := w.HandleTick(start)
	assert.Equal(t, ReplyTerminating, payload)
	assert.Equal(t, 0, rec.Extra.Iterations)
}

func TestRunWorker_RecordsBeforeReplying(t *testing.T) {
	// GIVEN a worker with a one-second lifetime behind a channel endpoint
	ch := NewSyncChannel()
	defer ch.Close()
	handle := WorkerHandle{PID: 4}
	ep, err := ch.Open(handle)
	require.NoError(t, err)
	w, err := NewWorker(handle, 100, Timestamp{}, Lifetime{Seconds: 1})
	require.NoError(t, err)
	w.Startup()
	sink := trace.NewSimulationTrace()

	done := make(chan error, 1)
	go func() { done <- RunWorker(context.Background(), w, ep, sink) }()

	// WHEN ticked at 0.5s and then at 1s
	ctx := context.Background()
	clocks := []Timestamp{{0, 500_000_000}, {1, 0}}
	var payloads []int
	for i, clock := range clocks {
		require.NoError(t, ch.SendTick(ctx, TickMessage{Worker: handle, Clock: clock}))
		reply, err := ch.AwaitReply(ctx, handle)
		require.NoError(t, err)

		// THEN the record for this tick is already in the sink when the reply arrives
		assert.Equal(t, i+1, sink.Len())
		assert.Equal(t, handle, reply.From)
		payloads = append(payloads, reply.Payload)
	}

	assert.Equal(t, []int{ReplyContinue, ReplyTerminating}, payloads)
	assert.NoError(t, <-done)
}

func TestRunWorker_ChannelClosed_ReturnsError(t *testing.T) {
	ch := NewSyncChannel()
	handle := WorkerHandle{PID: 1}
	ep, _ := ch.Open(handle)
	w, _ := NewWorker(handle, 0, Timestamp{}, Lifetime{Seconds: 5})
	w.Startup()
	ch.Close()

	err := RunWorker(context.Background(), w, ep, trace.Discard)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestWorkerState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "looping", StateLooping.String())
	assert.Equal(t, "terminating", StateTerminating.String())
	assert.Equal(t, "WorkerState(9)", WorkerState(9).String())
}
