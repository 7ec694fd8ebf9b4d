package proc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oss-sim/oss-sim/sim"
	"github.com/oss-sim/oss-sim/sim/trace"
)

// pipeLink adapts a worker's stdin/stdout to sim.WorkerLink and trace.Sink.
// Reads block without regard to ctx; the coordinator stops a stuck worker by signalling it.
type pipeLink struct {
	dec *Decoder
	enc *Encoder
	err error // first trace write failure
}

func (p *pipeLink) NextTick(_ context.Context) (sim.TickMessage, error) {
	env, err := p.dec.Expect(TypeTick)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return sim.TickMessage{}, sim.ErrChannelClosed
		}
		return sim.TickMessage{}, err
	}
	if env.Clock == nil {
		return sim.TickMessage{}, fmt.Errorf("tick envelope without clock")
	}
	return sim.TickMessage{Clock: *env.Clock}, nil
}

func (p *pipeLink) Reply(_ context.Context, reply sim.ReplyMessage) error {
	if p.err != nil {
		return p.err
	}
	return p.enc.Encode(ReplyEnvelope(reply))
}

func (p *pipeLink) Record(rec trace.Record) {
	if err := p.enc.Encode(TraceEnvelope(rec)); err != nil && p.err == nil {
		p.err = err
	}
}

// ServeWorker is the body of a worker process. It validates the lifetime before touching the pipes,
// reads the start snapshot, then answers ticks until the deadline is reached.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, pid, ppid int, lifetime sim.Lifetime) error {
	if err := lifetime.Validate(); err != nil {
		return err
	}
	link := &pipeLink{dec: NewDecoder(in), enc: NewEncoder(out)}

	start, err := link.dec.Expect(TypeStart)
	if err != nil {
		return fmt.Errorf("reading start snapshot: %w", err)
	}
	if start.Clock == nil {
		return fmt.Errorf("start envelope without clock")
	}
	w, err := sim.NewWorker(sim.WorkerHandle{PID: pid}, ppid, *start.Clock, lifetime)
	if err != nil {
		return err
	}
	link.Record(w.Startup())
	if link.err != nil {
		return link.err
	}
	return sim.RunWorker(ctx, w, link, link)
}
