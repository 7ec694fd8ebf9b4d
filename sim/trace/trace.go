package trace

import (
	"context"
	"errors"
	"sync"
)

// Sink accepts trace records. Implementations must be safe for use from the
// coordinator and from worker goroutines.
type Sink interface {
	Record(rec Record)
}

// Flusher is implemented by sinks that buffer output.
type Flusher interface {
	Flush(ctx context.Context) error
}

// SimulationTrace collects records in memory, in arrival order.
type SimulationTrace struct {
	mu      sync.Mutex
	records []Record
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace() *SimulationTrace {
	return &SimulationTrace{records: make([]Record, 0)}
}

// Record appends a record.
func (st *SimulationTrace) Record(rec Record) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.records = append(st.records, rec)
}

// Records returns a copy of everything recorded so far.
func (st *SimulationTrace) Records() []Record {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Record, len(st.records))
	copy(out, st.records)
	return out
}

// Len returns the number of records collected.
func (st *SimulationTrace) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.records)
}

// Tee fans records out to several sinks in order.
type Tee []Sink

// Record forwards rec to every sink.
func (t Tee) Record(rec Record) {
	for _, s := range t {
		s.Record(rec)
	}
}

// Flush flushes every sink that buffers output and joins their errors.
func (t Tee) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range t {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Record) {}
