package proc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-sim/oss-sim/sim"
	"github.com/oss-sim/oss-sim/sim/trace"
)

func TestCodec_StreamRoundTrip(t *testing.T) {
	// GIVEN a stream of every envelope type
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(ClockEnvelope(TypeStart, sim.Timestamp{Seconds: 1, Nanoseconds: 250_000_000})))
	require.NoError(t, enc.Encode(TraceEnvelope(trace.Record{Kind: trace.KindStartup, Worker: 12})))
	require.NoError(t, enc.Encode(ClockEnvelope(TypeTick, sim.Timestamp{Seconds: 2})))
	require.NoError(t, enc.Encode(ReplyEnvelope(sim.ReplyMessage{From: sim.WorkerHandle{PID: 12}, Payload: sim.ReplyTerminating})))

	// THEN it is one JSON object per line
	assert.Equal(t, 4, strings.Count(buf.String(), "\n"))

	// AND decodes back in order
	dec := NewDecoder(&buf)
	start, err := dec.Expect(TypeStart)
	require.NoError(t, err)
	assert.Equal(t, sim.Timestamp{Seconds: 1, Nanoseconds: 250_000_000}, *start.Clock)

	rec, err := dec.Expect(TypeTrace)
	require.NoError(t, err)
	assert.Equal(t, 12, rec.Record.Worker)

	_, err = dec.Expect(TypeTick)
	require.NoError(t, err)

	reply, err := dec.Expect(TypeReply)
	require.NoError(t, err)
	require.NotNil(t, reply.Payload, "a zero payload must survive encoding")
	assert.Equal(t, sim.ReplyTerminating, *reply.Payload)
	assert.Equal(t, 12, reply.Worker)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_Expect_WrongType(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"tick","clock":{"seconds":0,"nanoseconds":0}}` + "\n"))
	_, err := dec.Expect(TypeStart)
	assert.Error(t, err)
}

func TestDecoder_MalformedLine(t *testing.T) {
	dec := NewDecoder(strings.NewReader("not json\n"))
	_, err := dec.Decode()
	assert.Error(t, err)
}

func TestDecoder_UnknownRecordKind_Rejected(t *testing.T) {
	// GIVEN a trace envelope whose record kind is not one the trace knows
	dec := NewDecoder(strings.NewReader(`{"type":"trace","record":{"kind":"routing","worker":3}}` + "\n"))

	// WHEN decoded
	_, err := dec.Decode()

	// THEN it is rejected rather than passed to the sink
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing")
}
