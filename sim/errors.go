package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceAcquisition means the channel, trace sink or launcher could not be set up.
	ErrResourceAcquisition = errors.New("resource acquisition failure")

	// ErrLaunchFailure means a worker unit could not be started.
	ErrLaunchFailure = errors.New("worker launch failure")

	// ErrCapacityExceeded means an admission found no free process-table slot.
	// Reachable only if the concurrency-limit check upstream is broken.
	ErrCapacityExceeded = errors.New("process table capacity exceeded")

	// ErrProtocolViolation means a reply arrived with an unexpected payload or sender,
	// or a tick was sent while another one was still outstanding.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrInvalidLifetime rejects negative worker lifetime parameters at worker startup.
	ErrInvalidLifetime = errors.New("invalid worker lifetime")

	// ErrChannelClosed is returned by channel operations after Close or Forget.
	ErrChannelClosed = errors.New("sync channel closed")
)

// ProtocolViolationError describes a reply the coordinator refused to interpret.
type ProtocolViolationError struct {
	Worker  WorkerHandle // worker the coordinator was waiting on
	From    WorkerHandle // sender recorded on the reply
	Payload int
}

func (e *ProtocolViolationError) Error() string {
	if e.From != e.Worker {
		return fmt.Sprintf("protocol violation: awaited reply from worker %d, got one from worker %d", e.Worker.PID, e.From.PID)
	}
	return fmt.Sprintf("protocol violation: worker %d replied with payload %d", e.Worker.PID, e.Payload)
}

func (e *ProtocolViolationError) Unwrap() error {
	return ErrProtocolViolation
}
