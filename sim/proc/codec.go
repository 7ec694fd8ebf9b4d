// Package proc runs workers as OS processes. The coordinator re-executes a worker command with
// the two lifetime arguments and talks to it over stdin/stdout using JSON lines.
//
// Coordinator → worker: one "start" envelope carrying the launch-time clock snapshot,
// then one "tick" envelope per exchange.
// Worker → coordinator: "trace" envelopes for the worker's records and one "reply" envelope per tick.
package proc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/oss-sim/oss-sim/sim"
	"github.com/oss-sim/oss-sim/sim/trace"
)

// Envelope types.
const (
	TypeStart = "start"
	TypeTick  = "tick"
	TypeReply = "reply"
	TypeTrace = "trace"
)

// Envelope is one line on the wire.
type Envelope struct {
	Type    string         `json:"type"`
	Clock   *sim.Timestamp `json:"clock,omitempty"`
	Worker  int            `json:"worker,omitempty"`
	Payload *int           `json:"payload,omitempty"`
	Record  *trace.Record  `json:"record,omitempty"`
}

// Encoder writes envelopes, one per line. Safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes env followed by a newline.
func (e *Encoder) Encode(env Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(env); err != nil {
		return fmt.Errorf("encoding %s envelope: %w", env.Type, err)
	}
	return nil
}

// Decoder reads envelopes line by line.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(bufio.NewReader(r))}
}

// Decode reads the next envelope. Returns io.EOF at end of stream.
func (d *Decoder) Decode() (Envelope, error) {
	var env Envelope
	if err := d.dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if env.Type == TypeTrace && env.Record != nil && !trace.IsValidKind(string(env.Record.Kind)) {
		return Envelope{}, fmt.Errorf("trace envelope with unknown record kind %q", env.Record.Kind)
	}
	return env, nil
}

// Expect reads the next envelope and checks its type.
func (d *Decoder) Expect(typ string) (Envelope, error) {
	env, err := d.Decode()
	if err != nil {
		return Envelope{}, err
	}
	if env.Type != typ {
		return Envelope{}, fmt.Errorf("expected %s envelope, got %q", typ, env.Type)
	}
	return env, nil
}

// ReplyEnvelope builds a reply envelope from a ReplyMessage.
func ReplyEnvelope(reply sim.ReplyMessage) Envelope {
	payload := reply.Payload
	return Envelope{Type: TypeReply, Worker: reply.From.PID, Payload: &payload}
}

// TraceEnvelope builds a trace envelope.
func TraceEnvelope(rec trace.Record) Envelope {
	return Envelope{Type: TypeTrace, Record: &rec}
}

// ClockEnvelope builds a start or tick envelope.
func ClockEnvelope(typ string, clock sim.Timestamp) Envelope {
	return Envelope{Type: typ, Clock: &clock}
}
