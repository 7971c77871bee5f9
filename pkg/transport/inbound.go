package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploything/agent/pkg/dispatch"
	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
	"github.com/deploything/agent/pkg/types"
	"github.com/deploything/agent/pkg/wire"
)

// commandBacklog bounds the commands read ahead of the one executing. Reading
// ahead keeps pings flowing while a command is slow.
const commandBacklog = 64

// CommandSink accepts decoded commands, usually a *dispatch.Dispatcher
type CommandSink interface {
	Submit(ctx context.Context, env *dispatch.Envelope) error
	// Close signals that no more commands will be submitted
	Close()
}

// InboundPump reads frames off the connection. Pings are answered at once
// through the outbox, even when commands are queued behind a slow one.
// Binary frames are buffered in arrival order, decoded into commands and
// executed strictly one at a time: the next command is not submitted until
// the current one has a response.
type InboundPump struct {
	conn   Conn
	sink   CommandSink
	outbox *Outbox
	logger zerolog.Logger
}

// NewInboundPump creates a pump feeding sink from conn
func NewInboundPump(conn Conn, sink CommandSink, outbox *Outbox) *InboundPump {
	return &InboundPump{
		conn:   conn,
		sink:   sink,
		outbox: outbox,
		logger: log.WithComponent("inbound"),
	}
}

// Run returns nil when the control plane closes the connection or ctx is
// cancelled. Malformed or unexpected frames and read failures are returned
// as errors. The sink is closed on return.
func (p *InboundPump) Run(ctx context.Context) error {
	defer p.sink.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan Frame, commandBacklog)
	readErr := make(chan error, 1)
	go func() {
		defer close(commands)
		readErr <- p.readLoop(ctx, commands)
	}()

	cmdErr := p.commandLoop(ctx, commands)
	cancel()
	rErr := <-readErr

	if cmdErr != nil {
		return cmdErr
	}
	return rErr
}

func (p *InboundPump) readLoop(ctx context.Context, commands chan<- Frame) error {
	for {
		f, err := p.conn.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		metrics.FramesReceived.WithLabelValues(f.Kind.String()).Inc()

		switch f.Kind {
		case FramePing:
			metrics.PingsTotal.Inc()
			if err := p.outbox.Push(ctx, Frame{Kind: FramePong, Payload: f.Payload}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to queue pong: %w", err)
			}
		case FramePong:
		case FrameClose:
			p.logger.Info().Msg("Control plane closed the connection")
			return nil
		case FrameBinary:
			select {
			case commands <- f:
			case <-ctx.Done():
				return nil
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Kind)
		}
	}
}

func (p *InboundPump) commandLoop(ctx context.Context, commands <-chan Frame) error {
	for f := range commands {
		cmd, err := wire.DecodeCommand(f.Payload)
		if err != nil {
			return fmt.Errorf("failed to decode command: %w", err)
		}

		env := dispatch.NewEnvelope(cmd)
		logger := log.WithCommandID(env.ID)
		logger.Info().Str("kind", string(cmd.Kind())).Msg("Command received")

		if err := p.sink.Submit(ctx, env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to submit command: %w", err)
		}

		resp, err := env.Reply.Wait(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to await response: %w", err)
		}

		if err := p.reply(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Debug().Str("outcome", types.ResponseOutcome(resp)).Msg("Response queued")
	}
	return nil
}

func (p *InboundPump) reply(ctx context.Context, resp types.Response) error {
	payload, err := wire.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := p.outbox.Push(ctx, Frame{Kind: FrameBinary, Payload: payload}); err != nil {
		return fmt.Errorf("failed to queue response: %w", err)
	}
	return nil
}
