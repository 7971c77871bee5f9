package runtime

import (
	"fmt"

	"github.com/docker/go-connections/nat"

	"github.com/deploything/agent/pkg/types"
)

// portBinding is a validated HostConfig
type portBinding struct {
	container nat.Port // "8080/tcp"
	hostPort  string
}

// parsePortBinding validates a HostConfig. A container port without a
// protocol defaults to tcp.
func parsePortBinding(hc *types.HostConfig) (*portBinding, error) {
	if hc == nil {
		return nil, nil
	}

	proto, port := nat.SplitProtoPort(hc.FromPort)
	if _, err := nat.ParsePort(port); err != nil || port == "" {
		return nil, fmt.Errorf("invalid container port %q", hc.FromPort)
	}
	containerPort, err := nat.NewPort(proto, port)
	if err != nil {
		return nil, fmt.Errorf("invalid container port %q: %w", hc.FromPort, err)
	}

	if _, err := nat.ParsePort(hc.ToPort); err != nil || hc.ToPort == "" {
		return nil, fmt.Errorf("invalid host port %q", hc.ToPort)
	}

	return &portBinding{container: containerPort, hostPort: hc.ToPort}, nil
}
