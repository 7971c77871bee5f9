package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/metrics"
	"github.com/deploything/agent/pkg/orchestrator"
	"github.com/deploything/agent/pkg/types"
)

var _ types.CommandHandler = (*Dispatcher)(nil)

// ErrDispatcherStopped is returned when submitting to a dispatcher whose
// loop has exited
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher executes commands one at a time in the order they were
// submitted. Every envelope gets exactly one response and no command is
// retried.
type Dispatcher struct {
	orch      *orchestrator.Orchestrator
	queue     chan *Envelope
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

// New creates a dispatcher in front of orch. Run must be called to start it.
func New(orch *orchestrator.Orchestrator) *Dispatcher {
	return &Dispatcher{
		orch:   orch,
		queue:  make(chan *Envelope),
		done:   make(chan struct{}),
		logger: log.WithComponent("dispatcher"),
	}
}

// Submit hands env to the dispatch loop. It blocks until the loop takes it.
func (d *Dispatcher) Submit(ctx context.Context, env *Envelope) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.queue <- env:
		return nil
	case <-d.done:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tells the loop no more envelopes will arrive. Only the submitting
// side may call it, and never concurrently with Submit.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.queue) })
}

// Done is closed once the loop has exited
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run processes envelopes until the queue is closed or ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)

	d.logger.Info().Msg("Dispatcher started")
	for {
		select {
		case env, ok := <-d.queue:
			if !ok {
				d.logger.Info().Msg("Command queue closed, dispatcher exiting")
				return nil
			}
			d.handle(ctx, env)
		case <-ctx.Done():
			d.logger.Info().Msg("Dispatcher stopping")
			return nil
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, env *Envelope) {
	kind := string(env.Command.Kind())
	logger := log.WithCommandID(env.ID).With().Str("kind", kind).Logger()
	logger.Debug().Dur("queued", time.Since(env.Received)).Msg("Executing command")

	timer := metrics.NewTimer()
	resp := env.Command.Dispatch(ctx, d)
	timer.ObserveDurationVec(metrics.CommandDuration, kind)

	outcome := types.ResponseOutcome(resp)
	metrics.CommandsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.ManagedContainers.Set(float64(d.orch.Len()))

	if errResp, ok := resp.(types.ErrorResponse); ok {
		logger.Warn().Str("error", errResp.Message).Dur("took", timer.Duration()).Msg("Command failed")
	} else {
		logger.Info().Str("outcome", outcome).Dur("took", timer.Duration()).Msg("Command completed")
	}

	if !env.Reply.Fulfill(resp) {
		logger.Warn().Msg("Reply abandoned by sender, response dropped")
	}
}

// HandleRun spawns a container
func (d *Dispatcher) HandleRun(ctx context.Context, cmd types.RunCommand) types.Response {
	id, err := d.orch.Spawn(ctx, cmd.ImageName, cmd.Tag, cmd.HostConfig)
	if err != nil {
		return types.ErrorResponse{Message: err.Error()}
	}
	return types.StartedResponse{ContainerID: id}
}

// HandleStop stops a container this agent started
func (d *Dispatcher) HandleStop(ctx context.Context, cmd types.StopCommand) types.Response {
	id, err := d.orch.Terminate(ctx, cmd.ContainerID)
	if err != nil {
		return types.ErrorResponse{Message: err.Error()}
	}
	return types.StoppedResponse{ContainerID: id}
}
