package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write when ctx has no deadline
	writeWait = 10 * time.Second

	handshakeTimeout = 15 * time.Second
)

// ControlPlaneURL returns the websocket URL of the control plane
func ControlPlaneURL(hostname string, port int) string {
	return "ws://" + net.JoinHostPort(hostname, strconv.Itoa(port))
}

// WebSocketConn adapts a gorilla websocket connection to Conn
type WebSocketConn struct {
	conn *websocket.Conn

	frames chan Frame
	errc   chan error

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the control plane at url
func Dial(ctx context.Context, url string) (*WebSocketConn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return NewWebSocketConn(conn), nil
}

// NewWebSocketConn wraps an established connection and starts reading it
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	c := &WebSocketConn{
		conn:   conn,
		frames: make(chan Frame),
		errc:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	conn.SetPingHandler(func(data string) error {
		return c.deliver(Frame{Kind: FramePing, Payload: []byte(data)})
	})
	go c.readLoop()
	return c
}

func (c *WebSocketConn) deliver(f Frame) error {
	select {
	case c.frames <- f:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *WebSocketConn) readLoop() {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if c.deliver(Frame{Kind: FrameClose, Payload: []byte(closeErr.Text)}) == nil {
					err = io.EOF
				}
			}
			c.errc <- err
			return
		}

		kind := FrameBinary
		if mt == websocket.TextMessage {
			kind = FrameText
		}
		if c.deliver(Frame{Kind: kind, Payload: data}) != nil {
			c.errc <- net.ErrClosed
			return
		}
	}
}

// ReadFrame returns the next frame. After a close frame it returns io.EOF.
func (c *WebSocketConn) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errc:
		// Keep the terminal error for later reads
		c.errc <- err
		return Frame{}, err
	case <-c.closed:
		return Frame{}, net.ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// WriteFrame writes f. Control frames go through WriteControl so they never
// wait behind a data frame.
func (c *WebSocketConn) WriteFrame(ctx context.Context, f Frame) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}

	switch f.Kind {
	case FrameBinary, FrameText:
		mt := websocket.BinaryMessage
		if f.Kind == FrameText {
			mt = websocket.TextMessage
		}
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.conn.WriteMessage(mt, f.Payload)
	case FramePing:
		return c.conn.WriteControl(websocket.PingMessage, f.Payload, deadline)
	case FramePong:
		return c.conn.WriteControl(websocket.PongMessage, f.Payload, deadline)
	case FrameClose:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(f.Payload))
		return c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Kind)
	}
}

// Close closes the underlying connection and unblocks pending reads
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
