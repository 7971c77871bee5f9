// Package orchestrator owns the registry of containers this agent started.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/runtime"
	"github.com/deploything/agent/pkg/types"
)

// StopGracePeriod is how long a stopped container may take to exit before
// the runtime kills it
const StopGracePeriod = 10 * time.Second

// Stage names the step of a runtime sequence that failed
type Stage string

const (
	StagePull   Stage = "pull"
	StageCreate Stage = "create"
	StageStart  Stage = "start"
	StageStop   Stage = "stop"
)

// StageError is a runtime failure at one stage. Ref is the image reference
// for pull/create and the container id for start/stop.
type StageError struct {
	Stage Stage
	Ref   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Ref, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UnknownContainerError is returned when stopping an id this agent did not
// start or no longer tracks
type UnknownContainerError struct {
	ID string
}

func (e *UnknownContainerError) Error() string {
	return "Unknown container: " + e.ID
}

// ManagedContainer is a container started by this agent
type ManagedContainer struct {
	ID        string
	ImageRef  string
	StartedAt time.Time
}

// Orchestrator owns the registry of containers this agent started.
//
// It is not safe for concurrent use: the dispatcher is its only caller and
// processes one command at a time.
type Orchestrator struct {
	runtime    runtime.Client
	containers map[string]*ManagedContainer
	logger     zerolog.Logger
}

// New creates an orchestrator with an empty registry
func New(rt runtime.Client) *Orchestrator {
	return &Orchestrator{
		runtime:    rt,
		containers: make(map[string]*ManagedContainer),
		logger:     log.WithComponent("orchestrator"),
	}
}

// Spawn pulls, creates and starts a container. The container is registered
// only once it has started. A container that fails to start is removed so
// it does not linger in snapshots; a failed removal is only logged.
func (o *Orchestrator) Spawn(ctx context.Context, imageName, tag string, hostConfig *types.HostConfig) (string, error) {
	ref := types.RunCommand{ImageName: imageName, Tag: tag}.ImageRef()
	o.logger.Info().Str("image", ref).Msg("Pulling image")

	pulled, err := o.runtime.PullImage(ctx, imageName, tag)
	if err != nil {
		return "", &StageError{Stage: StagePull, Ref: ref, Err: err}
	}

	id, err := o.runtime.CreateContainer(ctx, pulled, hostConfig)
	if err != nil {
		return "", &StageError{Stage: StageCreate, Ref: pulled, Err: err}
	}
	logger := log.WithContainerID(id)
	logger.Info().Str("image", pulled).Msg("Container created")

	if err := o.runtime.StartContainer(ctx, id); err != nil {
		if rmErr := o.runtime.RemoveContainer(ctx, id); rmErr != nil {
			logger.Warn().Err(rmErr).Msg("Failed to remove container after start failure")
		}
		return "", &StageError{Stage: StageStart, Ref: id, Err: err}
	}

	o.containers[id] = &ManagedContainer{
		ID:        id,
		ImageRef:  pulled,
		StartedAt: time.Now(),
	}
	logger.Info().Int("managed", len(o.containers)).Msg("Container started")

	return id, nil
}

// Terminate stops a registered container. Unknown ids are refused without
// contacting the runtime. The entry is dropped whether or not the stop
// succeeds.
func (o *Orchestrator) Terminate(ctx context.Context, containerID string) (string, error) {
	if _, ok := o.containers[containerID]; !ok {
		return "", &UnknownContainerError{ID: containerID}
	}

	logger := log.WithContainerID(containerID)
	err := o.runtime.StopContainer(ctx, containerID, StopGracePeriod)
	delete(o.containers, containerID)

	if err != nil {
		logger.Warn().Err(err).Msg("Stop failed, container is no longer tracked")
		return "", &StageError{Stage: StageStop, Ref: containerID, Err: err}
	}

	logger.Info().Int("managed", len(o.containers)).Msg("Container stopped")
	return containerID, nil
}

// Lookup returns a registered container
func (o *Orchestrator) Lookup(containerID string) (*ManagedContainer, bool) {
	c, ok := o.containers[containerID]
	return c, ok
}

// Len returns the number of registered containers
func (o *Orchestrator) Len() int {
	return len(o.containers)
}
