// Package transport carries frames between the agent and the control plane.
//
// The inbound pump reads and the outbound pump writes, so the two halves of
// the connection progress independently. Everything written goes through a
// shared Outbox.
package transport

import (
	"context"
	"errors"
)

// ErrUnexpectedFrame is a frame kind the protocol does not allow, such as text
var ErrUnexpectedFrame = errors.New("unexpected frame")

// FrameKind identifies a transport frame
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
	FramePing
	FramePong
	FrameClose
)

func (k FrameKind) String() string {
	switch k {
	case FrameBinary:
		return "binary"
	case FrameText:
		return "text"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is one message on the control plane connection
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// Conn is a duplex frame stream. One goroutine may read while another
// writes.
type Conn interface {
	// ReadFrame blocks for the next frame. Keepalive pings are returned as
	// FramePing frames and are not answered automatically.
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, f Frame) error
	Close() error
}
