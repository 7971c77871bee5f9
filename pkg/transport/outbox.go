package transport

import (
	"context"
	"errors"
	"sync"
)

// DefaultOutboxSize is the number of frames that may wait for the writer
const DefaultOutboxSize = 64

// ErrOutboxClosed is returned when pushing after the outbound pump exited
var ErrOutboxClosed = errors.New("outbound queue closed")

// Outbox is the multi-producer queue drained by the outbound pump
type Outbox struct {
	frames    chan Frame
	closed    chan struct{}
	closeOnce sync.Once
}

// NewOutbox creates a queue holding up to size frames
func NewOutbox(size int) *Outbox {
	if size < 0 {
		size = 0
	}
	return &Outbox{
		frames: make(chan Frame, size),
		closed: make(chan struct{}),
	}
}

// Push enqueues f, blocking while the queue is full
func (o *Outbox) Push(ctx context.Context, f Frame) error {
	select {
	case <-o.closed:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.frames <- f:
		return nil
	case <-o.closed:
		return ErrOutboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown marks the queue as having no reader. Frames stay in the buffer.
func (o *Outbox) shutdown() {
	o.closeOnce.Do(func() { close(o.closed) })
}
