package sim

import (
	"context"
	"fmt"
	"sync"
)

// Reply payloads.
const (
	ReplyTerminating = 0 // deadline reached; final reply before the worker exits
	ReplyContinue    = 1 // deadline not reached yet
)

// WorkerHandle identifies a launched worker unit. PID doubles as the channel address.
type WorkerHandle struct {
	PID int
}

func (h WorkerHandle) String() string {
	return fmt.Sprintf("worker(%d)", h.PID)
}

// TickMessage releases a blocked worker to re-evaluate its deadline.
// Clock is a read-only snapshot of the coordinator's clock at send time.
type TickMessage struct {
	Worker WorkerHandle
	Clock  Timestamp
}

// ReplyMessage answers a TickMessage.
type ReplyMessage struct {
	From    WorkerHandle
	Payload int
}

type mailbox struct {
	worker      WorkerHandle
	ticks       chan TickMessage
	replies     chan ReplyMessage
	closed      chan struct{}
	closeOnce   sync.Once
	outstanding bool // guarded by SyncChannel.mu
}

func (m *mailbox) close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// SyncChannel is the addressed message facility between the coordinator and its workers.
// Every worker gets one mailbox; the coordinator never has more than one tick outstanding per mailbox.
type SyncChannel struct {
	mu     sync.Mutex
	boxes  map[int]*mailbox
	done   chan struct{}
	closed bool
}

// NewSyncChannel creates an open channel with no mailboxes.
func NewSyncChannel() *SyncChannel {
	return &SyncChannel{
		boxes: make(map[int]*mailbox),
		done:  make(chan struct{}),
	}
}

// Open allocates the mailbox for worker and returns the worker-side endpoint.
func (c *SyncChannel) Open(worker WorkerHandle) (*Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if _, ok := c.boxes[worker.PID]; ok {
		return nil, fmt.Errorf("mailbox for worker %d already open", worker.PID)
	}
	box := &mailbox{
		worker:  worker,
		ticks:   make(chan TickMessage, 1),
		replies: make(chan ReplyMessage, 1),
		closed:  make(chan struct{}),
	}
	c.boxes[worker.PID] = box
	return &Endpoint{box: box, done: c.done}, nil
}

// SendTick delivers tick to the mailbox of tick.Worker.
// Fails with ErrProtocolViolation if a previous tick to that worker has not been answered.
func (c *SyncChannel) SendTick(ctx context.Context, tick TickMessage) error {
	c.mu.Lock()
	box, err := c.lookup(tick.Worker)
	if err == nil && box.outstanding {
		err = fmt.Errorf("%w: tick to worker %d still outstanding", ErrProtocolViolation, tick.Worker.PID)
	}
	if err == nil {
		box.outstanding = true
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case box.ticks <- tick:
		return nil
	case <-box.closed:
		return ErrChannelClosed
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitReply blocks until worker answers its outstanding tick.
func (c *SyncChannel) AwaitReply(ctx context.Context, worker WorkerHandle) (ReplyMessage, error) {
	c.mu.Lock()
	box, err := c.lookup(worker)
	c.mu.Unlock()
	if err != nil {
		return ReplyMessage{}, err
	}

	select {
	case reply := <-box.replies:
		c.mu.Lock()
		box.outstanding = false
		c.mu.Unlock()
		return reply, nil
	case <-box.closed:
		return ReplyMessage{}, ErrChannelClosed
	case <-c.done:
		return ReplyMessage{}, ErrChannelClosed
	case <-ctx.Done():
		return ReplyMessage{}, ctx.Err()
	}
}

// Forget closes and removes the mailbox of worker. Unknown workers are ignored.
func (c *SyncChannel) Forget(worker WorkerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if box, ok := c.boxes[worker.PID]; ok {
		box.close()
		delete(c.boxes, worker.PID)
	}
}

// Close tears the channel down. Blocked senders and receivers on both sides return ErrChannelClosed.
func (c *SyncChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for pid, box := range c.boxes {
		box.close()
		delete(c.boxes, pid)
	}
}

func (c *SyncChannel) lookup(worker WorkerHandle) (*mailbox, error) {
	if c.closed {
		return nil, ErrChannelClosed
	}
	box, ok := c.boxes[worker.PID]
	if !ok {
		return nil, fmt.Errorf("%w: no mailbox for worker %d", ErrProtocolViolation, worker.PID)
	}
	return box, nil
}

// Endpoint is the worker side of a mailbox.
type Endpoint struct {
	box  *mailbox
	done chan struct{}
}

// Worker returns the handle the mailbox is addressed to.
func (e *Endpoint) Worker() WorkerHandle { return e.box.worker }

// NextTick blocks until the coordinator sends a tick.
func (e *Endpoint) NextTick(ctx context.Context) (TickMessage, error) {
	select {
	case tick := <-e.box.ticks:
		return tick, nil
	case <-e.box.closed:
		return TickMessage{}, ErrChannelClosed
	case <-e.done:
		return TickMessage{}, ErrChannelClosed
	case <-ctx.Done():
		return TickMessage{}, ctx.Err()
	}
}

// Reply posts reply to the coordinator. The sender recorded on the message is left as given so a
// relay can forward what the unit actually claimed.
func (e *Endpoint) Reply(ctx context.Context, reply ReplyMessage) error {
	select {
	case e.box.replies <- reply:
		return nil
	case <-e.box.closed:
		return ErrChannelClosed
	case <-e.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
