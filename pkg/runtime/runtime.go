// Package runtime drives a local container engine (Docker or containerd).
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/deploything/agent/pkg/types"
)

const (
	// DriverDocker selects the Docker Engine API
	DriverDocker = "docker"

	// DriverContainerd selects containerd
	DriverContainerd = "containerd"

	// ManagedLabel marks containers created by the agent
	ManagedLabel = "io.deploything.managed"
)

// Client is the container runtime control API the agent drives.
// Implementations must be safe for concurrent use.
type Client interface {
	// PullImage pulls name:tag and returns the reference to create from
	PullImage(ctx context.Context, name, tag string) (string, error)

	// CreateContainer creates a container from a pulled image reference
	CreateContainer(ctx context.Context, imageRef string, hostConfig *types.HostConfig) (string, error)

	// StartContainer starts a created container
	StartContainer(ctx context.Context, containerID string) error

	// StopContainer stops a container, force-killing it after grace
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error

	// RemoveContainer deletes a container and its writable layer
	RemoveContainer(ctx context.Context, containerID string) error

	// ListContainers returns the current status of every container
	ListContainers(ctx context.Context) ([]types.ContainerStatus, error)

	Close() error
}

// EventSource is implemented by runtimes that stream container lifecycle
// events for the containers the agent manages
type EventSource interface {
	// WatchEvents calls fn for every event until ctx is cancelled, which
	// returns nil, or the stream fails
	WatchEvents(ctx context.Context, fn func(types.ContainerEvent)) error
}

// Options selects and configures a runtime driver
type Options struct {
	Driver           string
	ContainerdSocket string
	Namespace        string
}

// New creates the runtime client for the configured driver
func New(opts Options) (Client, error) {
	switch opts.Driver {
	case "", DriverDocker:
		return NewDockerRuntime()
	case DriverContainerd:
		return NewContainerdRuntime(opts.ContainerdSocket, opts.Namespace)
	default:
		return nil, fmt.Errorf("unsupported container runtime: %s", opts.Driver)
	}
}
