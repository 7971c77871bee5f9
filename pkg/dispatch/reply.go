package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/deploything/agent/pkg/types"
)

// ErrReplyObserved is returned by a second Wait on the same Reply
var ErrReplyObserved = errors.New("reply already observed")

type replyState int

const (
	replyPending replyState = iota
	replyFulfilled
	replyAbandoned
)

// Reply pairs one command with its one response. It can be fulfilled once
// and observed once. Fulfilling twice, or after the waiter gave up, is a
// no-op that reports false.
type Reply struct {
	mu       sync.Mutex
	state    replyState
	observed bool
	ch       chan types.Response
}

// NewReply creates a pending reply
func NewReply() *Reply {
	return &Reply{ch: make(chan types.Response, 1)}
}

// Fulfill delivers the response. It never blocks.
func (r *Reply) Fulfill(resp types.Response) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != replyPending {
		return false
	}
	r.state = replyFulfilled
	r.ch <- resp
	return true
}

// Wait blocks until the reply is fulfilled or ctx is done. A cancelled wait
// abandons the reply unless a response already arrived.
func (r *Reply) Wait(ctx context.Context) (types.Response, error) {
	r.mu.Lock()
	if r.observed {
		r.mu.Unlock()
		return nil, ErrReplyObserved
	}
	r.mu.Unlock()

	select {
	case resp := <-r.ch:
		r.markObserved()
		return resp, nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	if r.state == replyPending {
		r.state = replyAbandoned
		r.mu.Unlock()
		return nil, ctx.Err()
	}
	r.mu.Unlock()

	// Fulfilled while ctx was being cancelled
	resp := <-r.ch
	r.markObserved()
	return resp, nil
}

// Abandon gives up on the reply without waiting
func (r *Reply) Abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == replyPending {
		r.state = replyAbandoned
	}
}

func (r *Reply) markObserved() {
	r.mu.Lock()
	r.observed = true
	r.mu.Unlock()
}
