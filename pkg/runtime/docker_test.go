package runtime

import (
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/events"
	"github.com/stretchr/testify/assert"

	"github.com/deploything/agent/pkg/types"
)

func TestDockerState(t *testing.T) {
	tests := []struct {
		state string
		want  types.ContainerState
	}{
		{"running", types.ContainerStateRunning},
		{"exited", types.ContainerStateExited},
		{"created", types.ContainerStateUnspecified},
		{"paused", types.ContainerStateUnspecified},
		{"restarting", types.ContainerStateUnspecified},
		{"", types.ContainerStateUnspecified},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.want, dockerState(tt.state))
		})
	}
}

func TestDockerStatus(t *testing.T) {
	got := dockerStatus(dockertypes.Container{
		ID:    "4f1c2d",
		Names: []string{"/eager_turing", "/alias"},
		Image: "mccutchen/go-httpbin:latest",
		State: "running",
	})

	assert.Equal(t, types.ContainerStatus{
		ID:       "4f1c2d",
		Name:     "eager_turing",
		ImageRef: "mccutchen/go-httpbin:latest",
		State:    types.ContainerStateRunning,
	}, got)
}

func TestDockerStatusWithoutName(t *testing.T) {
	got := dockerStatus(dockertypes.Container{ID: "4f1c2d", State: "exited"})
	assert.Empty(t, got.Name)
	assert.Equal(t, types.ContainerStateExited, got.State)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(Options{Driver: "podman"})
	assert.ErrorContains(t, err, "unsupported container runtime: podman")
}

func TestDockerEvent(t *testing.T) {
	msg := events.Message{
		Type:   events.ContainerEventType,
		Action: "die",
		Actor: events.Actor{
			ID:         "abc123",
			Attributes: map[string]string{"image": "nginx:latest", ManagedLabel: "true"},
		},
		Time:     1700000000,
		TimeNano: 1700000000123456789,
	}

	ev := dockerEvent(msg)
	assert.Equal(t, "abc123", ev.ContainerID)
	assert.Equal(t, "die", ev.Action)
	assert.Equal(t, "nginx:latest", ev.Image)
	assert.Equal(t, time.Unix(0, 1700000000123456789), ev.Time)

	msg.TimeNano = 0
	assert.Equal(t, time.Unix(1700000000, 0), dockerEvent(msg).Time)
}
