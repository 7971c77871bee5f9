package transport

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
)

// OutboundPump writes queued frames to the connection in FIFO order
type OutboundPump struct {
	conn   Conn
	outbox *Outbox
	logger zerolog.Logger
}

// NewOutboundPump creates a pump draining outbox into conn
func NewOutboundPump(conn Conn, outbox *Outbox) *OutboundPump {
	return &OutboundPump{
		conn:   conn,
		outbox: outbox,
		logger: log.WithComponent("outbound"),
	}
}

// Run drains the outbox until ctx is cancelled. Write failures are logged
// and the pump moves on to the next frame.
func (p *OutboundPump) Run(ctx context.Context) error {
	defer p.outbox.shutdown()

	for {
		select {
		case f := <-p.outbox.frames:
			if err := p.conn.WriteFrame(ctx, f); err != nil {
				metrics.OutboundWriteFailures.Inc()
				p.logger.Warn().Err(err).Str("kind", f.Kind.String()).Int("bytes", len(f.Payload)).Msg("Failed to write frame")
				continue
			}
			p.logger.Debug().Str("kind", f.Kind.String()).Int("bytes", len(f.Payload)).Msg("Frame written")
		case <-ctx.Done():
			p.logger.Info().Msg("Outbound pump stopping")
			return nil
		}
	}
}
