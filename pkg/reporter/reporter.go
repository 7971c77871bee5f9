package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
	"github.com/deploything/agent/pkg/runtime"
	"github.com/deploything/agent/pkg/transport"
	"github.com/deploything/agent/pkg/types"
	"github.com/deploything/agent/pkg/wire"
)

// DefaultInterval is the snapshot period when none is configured
const DefaultInterval = 10 * time.Second

// Publisher queues an encoded frame for the control plane
type Publisher interface {
	Push(ctx context.Context, f transport.Frame) error
}

// Reporter periodically lists the runtime's containers and publishes a
// snapshot. A failed listing skips that tick only.
type Reporter struct {
	runtime   runtime.Client
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a reporter. A non-positive interval uses DefaultInterval.
func New(rt runtime.Client, publisher Publisher, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		runtime:   rt,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    log.WithComponent("reporter"),
	}
}

// Run ticks until ctx is cancelled. It fails only when the snapshot cannot
// be queued, which means the outbound side is gone.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("Snapshot reporter started")

	for {
		select {
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case <-ctx.Done():
			r.logger.Info().Msg("Snapshot reporter stopping")
			return nil
		}
	}
}

// Tick builds and publishes one snapshot
func (r *Reporter) Tick(ctx context.Context) error {
	statuses, err := r.runtime.ListContainers(ctx)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues(metrics.SnapshotSkipped).Inc()
		metrics.UpdateComponent(metrics.ComponentRuntime, false, err.Error())
		r.logger.Warn().Err(err).Msg("Failed to list containers, skipping snapshot")
		return nil
	}
	metrics.UpdateComponent(metrics.ComponentRuntime, true, "")

	snap := types.Snapshot{
		Timestamp:  r.now().UTC(),
		Containers: statuses,
	}
	payload, err := wire.EncodeSnapshot(snap)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues(metrics.SnapshotSkipped).Inc()
		r.logger.Warn().Err(err).Msg("Failed to encode snapshot, skipping")
		return nil
	}

	if err := r.publisher.Push(ctx, transport.Frame{Kind: transport.FrameBinary, Payload: payload}); err != nil {
		return fmt.Errorf("failed to queue snapshot: %w", err)
	}

	metrics.SnapshotsTotal.WithLabelValues(metrics.SnapshotSent).Inc()
	r.logger.Debug().Int("containers", len(statuses)).Msg("Snapshot queued")
	return nil
}
