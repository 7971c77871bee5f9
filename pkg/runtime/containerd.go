package runtime

import (
	"context"
	"fmt"
	"path"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	apievents "github.com/containerd/containerd/api/events"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/events"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/containerd/typeurl/v2"
	"github.com/distribution/reference"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/deploything/agent/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for agent containers
	DefaultNamespace = "deploything"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdRuntime implements Client using containerd.
//
// Containers run in the host network namespace, so a port mapping is only
// accepted when the container and host ports are the same.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime creates a new containerd runtime client
func NewContainerdRuntime(socketPath, namespace string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: namespace,
	}, nil
}

// Close closes the containerd client connection
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// PullImage pulls and unpacks an image. Short names are normalized to
// their docker.io form.
func (r *ContainerdRuntime) PullImage(ctx context.Context, name, tag string) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	ref, err := normalizeRef(name, tag)
	if err != nil {
		return "", err
	}

	if _, err := r.client.Pull(ctx, ref, containerd.WithPullUnpack); err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	return ref, nil
}

func normalizeRef(name, tag string) (string, error) {
	raw := types.RunCommand{ImageName: name, Tag: tag}.ImageRef()
	named, err := reference.ParseDockerRef(raw)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %s: %w", raw, err)
	}
	return named.String(), nil
}

// CreateContainer creates a container with a fresh id
func (r *ContainerdRuntime) CreateContainer(ctx context.Context, imageRef string, hostConfig *types.HostConfig) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	opts, err := hostNetworkOpts(hostConfig)
	if err != nil {
		return "", fmt.Errorf("failed to create container for image %s: %w", imageRef, err)
	}

	image, err := r.client.GetImage(ctx, imageRef)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", imageRef, err)
	}

	opts = append([]oci.SpecOpts{oci.WithImageConfig(image)}, opts...)

	id := uuid.NewString()
	container, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(map[string]string{ManagedLabel: "true"}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container for image %s: %w", imageRef, err)
	}

	return container.ID(), nil
}

// hostNetworkOpts returns the spec options for a port mapping
func hostNetworkOpts(hostConfig *types.HostConfig) ([]oci.SpecOpts, error) {
	binding, err := parsePortBinding(hostConfig)
	if err != nil || binding == nil {
		return nil, err
	}
	if binding.container.Port() != binding.hostPort {
		return nil, fmt.Errorf("port mapping %s -> %s not supported: containers share the host network, ports must match",
			binding.container, binding.hostPort)
	}

	return []oci.SpecOpts{
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostHostsFile,
		oci.WithHostResolvconf,
	}, nil
}

// StartContainer creates and starts the container's task
func (r *ContainerdRuntime) StartContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to start container %s: %w", containerID, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container %s: %w", containerID, err)
	}

	return nil
}

// StopContainer sends SIGTERM, waits up to grace, then SIGKILL. The task is
// deleted afterwards; the container stays listed as exited.
func (r *ContainerdRuntime) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}

	return stopTask(ctx, container, grace)
}

// stopTask signals the container's task and deletes it once it exits. A
// container without a task is already stopped.
func stopTask(ctx context.Context, container containerd.Container, grace time.Duration) error {
	containerID := container.ID()

	task, err := container.Task(ctx, nil)
	if errdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load task for container %s: %w", containerID, err)
	}

	// Subscribe to exit before signalling so the exit cannot be missed
	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}

	if err := task.Kill(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-statusC:
	case <-timer.C:
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill container %s: %w", containerID, err)
		}
		select {
		case <-statusC:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task for container %s: %w", containerID, err)
	}

	return nil
}

// RemoveContainer deletes a container, killing any task it still has, and
// cleans up its snapshot
func (r *ContainerdRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	switch {
	case errdefs.IsNotFound(err):
	case err != nil:
		return fmt.Errorf("failed to load task for container %s: %w", containerID, err)
	default:
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to delete task for container %s: %w", containerID, err)
		}
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// WatchEvents streams task and container events from the agent namespace
func (r *ContainerdRuntime) WatchEvents(ctx context.Context, fn func(types.ContainerEvent)) error {
	envelopes, errs := r.client.EventService().Subscribe(ctx, fmt.Sprintf("namespace==%s", r.namespace))

	for {
		select {
		case env := <-envelopes:
			if ev, ok := containerdEvent(env); ok {
				fn(ev)
			}
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

// containerdEvent maps an envelope to a container event. Topics other than
// container and task lifecycle changes are skipped.
func containerdEvent(env *events.Envelope) (types.ContainerEvent, bool) {
	if env == nil || env.Event == nil {
		return types.ContainerEvent{}, false
	}

	payload, err := typeurl.UnmarshalAny(env.Event)
	if err != nil {
		return types.ContainerEvent{}, false
	}

	ev := types.ContainerEvent{Action: path.Base(env.Topic), Time: env.Timestamp}
	switch e := payload.(type) {
	case *apievents.ContainerCreate:
		ev.ContainerID = e.ID
		ev.Image = e.Image
	case *apievents.ContainerDelete:
		ev.ContainerID = e.ID
	case *apievents.TaskStart:
		ev.ContainerID = e.ContainerID
	case *apievents.TaskExit:
		ev.ContainerID = e.ContainerID
	case *apievents.TaskOOM:
		ev.ContainerID = e.ContainerID
	case *apievents.TaskDelete:
		ev.ContainerID = e.ContainerID
	default:
		return types.ContainerEvent{}, false
	}
	return ev, true
}

// ListContainers returns every container in the namespace
func (r *ContainerdRuntime) ListContainers(ctx context.Context) ([]types.ContainerStatus, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]types.ContainerStatus, 0, len(containers))
	for _, c := range containers {
		status := types.ContainerStatus{ID: c.ID(), Name: c.ID()}

		if info, err := c.Info(ctx); err == nil {
			status.ImageRef = info.Image
		}

		task, err := c.Task(ctx, nil)
		switch {
		case errdefs.IsNotFound(err):
			status.State = types.ContainerStateExited
		case err != nil:
			status.State = types.ContainerStateUnspecified
		default:
			st, err := task.Status(ctx)
			if err != nil {
				status.State = types.ContainerStateUnspecified
			} else {
				status.State = containerdState(st.Status)
			}
		}

		result = append(result, status)
	}

	return result, nil
}

func containerdState(status containerd.ProcessStatus) types.ContainerState {
	switch status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		return types.ContainerStateRunning
	case containerd.Stopped:
		return types.ContainerStateExited
	default:
		return types.ContainerStateUnspecified
	}
}
