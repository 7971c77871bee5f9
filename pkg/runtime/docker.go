package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"

	"github.com/deploything/agent/pkg/types"
)

// DockerRuntime implements Client using the Docker Engine API
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime creates a Docker client from the environment
// (DOCKER_HOST and friends), negotiating the API version
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close closes the Docker client
func (r *DockerRuntime) Close() error {
	if r.cli != nil {
		return r.cli.Close()
	}
	return nil
}

// PullImage pulls an image. The progress stream is drained so errors
// reported mid-stream by the daemon are not lost.
func (r *DockerRuntime) PullImage(ctx context.Context, name, tag string) (string, error) {
	ref := types.RunCommand{ImageName: name, Tag: tag}.ImageRef()

	reader, err := r.cli.ImagePull(ctx, ref, dockertypes.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	return ref, nil
}

// CreateContainer creates a container, publishing the configured port
func (r *DockerRuntime) CreateContainer(ctx context.Context, imageRef string, hostConfig *types.HostConfig) (string, error) {
	binding, err := parsePortBinding(hostConfig)
	if err != nil {
		return "", fmt.Errorf("failed to create container for image %s: %w", imageRef, err)
	}

	cfg := &container.Config{
		Image:  imageRef,
		Labels: map[string]string{ManagedLabel: "true"},
	}
	var hostCfg *container.HostConfig
	if binding != nil {
		cfg.ExposedPorts = nat.PortSet{binding.container: struct{}{}}
		hostCfg = &container.HostConfig{
			PortBindings: nat.PortMap{
				binding.container: []nat.PortBinding{{HostPort: binding.hostPort}},
			},
		}
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container for image %s: %w", imageRef, err)
	}

	return resp.ID, nil
}

// StartContainer starts a created container
func (r *DockerRuntime) StartContainer(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", containerID, err)
	}
	return nil
}

// StopContainer asks the daemon to stop a container; the daemon sends
// SIGKILL once grace has elapsed
func (r *DockerRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	return nil
}

// RemoveContainer force-removes a container along with its anonymous volumes
func (r *DockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// WatchEvents streams container events for agent-managed containers
func (r *DockerRuntime) WatchEvents(ctx context.Context, fn func(types.ContainerEvent)) error {
	msgs, errs := r.cli.Events(ctx, dockertypes.EventsOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ContainerEventType)),
			filters.Arg("label", ManagedLabel),
		),
	})

	for {
		select {
		case msg := <-msgs:
			fn(dockerEvent(msg))
		case err := <-errs:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to watch container events: %w", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func dockerEvent(msg events.Message) types.ContainerEvent {
	ts := time.Unix(msg.Time, 0)
	if msg.TimeNano != 0 {
		ts = time.Unix(0, msg.TimeNano)
	}
	return types.ContainerEvent{
		ContainerID: msg.Actor.ID,
		Action:      string(msg.Action),
		Image:       msg.Actor.Attributes["image"],
		Time:        ts,
	}
}

// ListContainers returns all containers, stopped ones included
func (r *DockerRuntime) ListContainers(ctx context.Context) ([]types.ContainerStatus, error) {
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]types.ContainerStatus, 0, len(containers))
	for _, c := range containers {
		result = append(result, dockerStatus(c))
	}
	return result, nil
}

func dockerStatus(c dockertypes.Container) types.ContainerStatus {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return types.ContainerStatus{
		ID:       c.ID,
		Name:     name,
		ImageRef: c.Image,
		State:    dockerState(c.State),
	}
}

func dockerState(state string) types.ContainerState {
	switch state {
	case "running":
		return types.ContainerStateRunning
	case "exited":
		return types.ContainerStateExited
	default:
		return types.ContainerStateUnspecified
	}
}
