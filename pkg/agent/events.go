package agent

import (
	"context"
	"errors"
	"time"

	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
	"github.com/deploything/agent/pkg/runtime"
	"github.com/deploything/agent/pkg/types"
)

// eventsRetryDelay is the pause before resubscribing to a failed event stream
const eventsRetryDelay = 5 * time.Second

// watchEvents logs container lifecycle events until ctx is cancelled. A
// failed stream marks the runtime unhealthy and is resubscribed after retry;
// the reporter's next successful list marks it healthy again.
func watchEvents(ctx context.Context, source runtime.EventSource, retry time.Duration) error {
	logger := log.WithComponent("events")
	logger.Info().Msg("Watching container events")

	for {
		err := source.WatchEvents(ctx, func(ev types.ContainerEvent) {
			metrics.RuntimeEventsTotal.WithLabelValues(ev.Action).Inc()
			logger.Info().
				Str("container_id", ev.ContainerID).
				Str("action", ev.Action).
				Str("image", ev.Image).
				Time("at", ev.Time).
				Msg("Container event")
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("event stream ended")
		}

		metrics.UpdateComponent(metrics.ComponentRuntime, false, err.Error())
		logger.Warn().Err(err).Dur("retry_in", retry).Msg("Container event stream failed")

		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return nil
		}
	}
}
