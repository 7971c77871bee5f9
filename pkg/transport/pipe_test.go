package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// pipeConn is an in-memory Conn. Tests feed frames through in and read what
// the agent wrote from out.
type pipeConn struct {
	in  chan Frame
	out chan Frame

	mu        sync.Mutex
	failWrite int

	closed    chan struct{}
	closeOnce sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan Frame),
		out:    make(chan Frame, 32),
		closed: make(chan struct{}),
	}
}

func (c *pipeConn) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return Frame{}, io.EOF
		}
		return f, nil
	case <-c.closed:
		return Frame{}, net.ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *pipeConn) WriteFrame(_ context.Context, f Frame) error {
	c.mu.Lock()
	if c.failWrite > 0 {
		c.failWrite--
		c.mu.Unlock()
		return errors.New("broken pipe")
	}
	c.mu.Unlock()

	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) failNextWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrite = n
}
