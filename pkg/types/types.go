package types

import (
	"context"
	"time"
)

// DefaultTag is used when a run command does not name an image tag
const DefaultTag = "latest"

// CommandKind names a command variant for logging and metrics
type CommandKind string

const (
	CommandKindRun  CommandKind = "run"
	CommandKindStop CommandKind = "stop"
)

// Command is an instruction received from the control plane.
//
// The set of commands is closed. Each variant routes itself to the matching
// CommandHandler method, so adding a variant means adding a handler method,
// and every handler stops compiling until it covers the new kind.
type Command interface {
	Kind() CommandKind
	Dispatch(ctx context.Context, h CommandHandler) Response
}

// CommandHandler executes commands, one method per command variant
type CommandHandler interface {
	HandleRun(ctx context.Context, cmd RunCommand) Response
	HandleStop(ctx context.Context, cmd StopCommand) Response
}

// RunCommand asks the agent to pull an image and start a container from it
type RunCommand struct {
	ImageName  string
	Tag        string
	HostConfig *HostConfig // nil means no published ports
}

func (RunCommand) Kind() CommandKind { return CommandKindRun }

func (c RunCommand) Dispatch(ctx context.Context, h CommandHandler) Response {
	return h.HandleRun(ctx, c)
}

// ImageRef returns name:tag, falling back to DefaultTag
func (c RunCommand) ImageRef() string {
	tag := c.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return c.ImageName + ":" + tag
}

// StopCommand asks the agent to stop a container it started earlier
type StopCommand struct {
	ContainerID string
}

func (StopCommand) Kind() CommandKind { return CommandKindStop }

func (c StopCommand) Dispatch(ctx context.Context, h CommandHandler) Response {
	return h.HandleStop(ctx, c)
}

// HostConfig holds a single published port.
// FromPort is the container side ("8080/tcp"), ToPort the host side ("8080").
type HostConfig struct {
	FromPort string
	ToPort   string
}

// Response is the single outcome produced for a command
type Response interface {
	isResponse()
}

// StartedResponse reports a container started by a run command
type StartedResponse struct {
	ContainerID string
}

// StoppedResponse reports a container stopped by a stop command
type StoppedResponse struct {
	ContainerID string
}

// ErrorResponse reports a command that failed
type ErrorResponse struct {
	Message string
}

func (StartedResponse) isResponse() {}
func (StoppedResponse) isResponse() {}
func (ErrorResponse) isResponse()   {}

// ResponseOutcome returns a short label for logs and metrics
func ResponseOutcome(r Response) string {
	switch r.(type) {
	case StartedResponse:
		return "started"
	case StoppedResponse:
		return "stopped"
	case ErrorResponse:
		return "error"
	default:
		return "unknown"
	}
}

// ContainerState is the coarse state reported in snapshots
type ContainerState int32

const (
	ContainerStateUnspecified ContainerState = 0
	ContainerStateRunning     ContainerState = 1
	ContainerStateExited      ContainerState = 2
)

func (s ContainerState) String() string {
	switch s {
	case ContainerStateRunning:
		return "running"
	case ContainerStateExited:
		return "exited"
	default:
		return "unspecified"
	}
}

// ContainerStatus is one container as seen by the runtime at listing time
type ContainerStatus struct {
	ID       string
	Name     string
	ImageRef string
	State    ContainerState
}

// Snapshot is a point-in-time report of every container the runtime knows
type Snapshot struct {
	Timestamp  time.Time
	Containers []ContainerStatus
}

// ContainerEvent is a lifecycle change reported by the container engine,
// e.g. "start", "die" or "oom"
type ContainerEvent struct {
	ContainerID string
	Action      string
	Image       string
	Time        time.Time
}
