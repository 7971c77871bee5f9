package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/deploything/agent/pkg/types"
)

// RemoteCommand fields
const (
	remoteCommandRun  protowire.Number = 1
	remoteCommandStop protowire.Number = 2
)

// RunParams fields
const (
	runImageName  protowire.Number = 1
	runTag        protowire.Number = 2
	runHostConfig protowire.Number = 3
)

// ContainerHostConfig, PortMap and StopParams fields
const (
	hostConfigPortMap protowire.Number = 1
	portMapFrom       protowire.Number = 1
	portMapTo         protowire.Number = 2
	stopContainerID   protowire.Number = 1
)

// DecodeCommand decodes a RemoteCommand payload. A payload without a command
// variant is malformed.
func DecodeCommand(b []byte) (types.Command, error) {
	var cmd types.Command

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case remoteCommandRun:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			run, err := decodeRunParams(v)
			if err != nil {
				return 0, err
			}
			cmd = run
			return n, nil
		case remoteCommandStop:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			stop, err := decodeStopParams(v)
			if err != nil {
				return 0, err
			}
			cmd = stop
			return n, nil
		default:
			return 0, errSkip
		}
	})
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("%w: remote command has no command set", ErrMalformed)
	}
	return cmd, nil
}

func decodeRunParams(b []byte) (types.RunCommand, error) {
	var run types.RunCommand

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case runImageName:
			v, n, err := consumeString(num, typ, b)
			run.ImageName = v
			return n, err
		case runTag:
			v, n, err := consumeString(num, typ, b)
			run.Tag = v
			return n, err
		case runHostConfig:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			hc, err := decodeHostConfig(v)
			if err != nil {
				return 0, err
			}
			run.HostConfig = hc
			return n, nil
		default:
			return 0, errSkip
		}
	})
	return run, err
}

// decodeHostConfig returns nil when no port map is present
func decodeHostConfig(b []byte) (*types.HostConfig, error) {
	var hc *types.HostConfig

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != hostConfigPortMap {
			return 0, errSkip
		}
		v, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		pm := &types.HostConfig{}
		err = walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case portMapFrom:
				s, n, err := consumeString(num, typ, b)
				pm.FromPort = s
				return n, err
			case portMapTo:
				s, n, err := consumeString(num, typ, b)
				pm.ToPort = s
				return n, err
			default:
				return 0, errSkip
			}
		})
		if err != nil {
			return 0, err
		}
		hc = pm
		return n, nil
	})
	return hc, err
}

func decodeStopParams(b []byte) (types.StopCommand, error) {
	var stop types.StopCommand

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != stopContainerID {
			return 0, errSkip
		}
		v, n, err := consumeString(num, typ, b)
		stop.ContainerID = v
		return n, err
	})
	return stop, err
}

// EncodeCommand encodes a command as a RemoteCommand. The agent only decodes
// commands; encoding serves control plane tooling and tests.
func EncodeCommand(cmd types.Command) ([]byte, error) {
	switch c := cmd.(type) {
	case types.RunCommand:
		var params []byte
		if c.ImageName != "" {
			params = appendString(params, runImageName, c.ImageName)
		}
		if c.Tag != "" {
			params = appendString(params, runTag, c.Tag)
		}
		if c.HostConfig != nil {
			var pm []byte
			pm = appendString(pm, portMapFrom, c.HostConfig.FromPort)
			pm = appendString(pm, portMapTo, c.HostConfig.ToPort)
			params = appendMessage(params, runHostConfig, appendMessage(nil, hostConfigPortMap, pm))
		}
		return appendMessage(nil, remoteCommandRun, params), nil
	case types.StopCommand:
		params := appendString(nil, stopContainerID, c.ContainerID)
		return appendMessage(nil, remoteCommandStop, params), nil
	default:
		return nil, fmt.Errorf("cannot encode command of type %T", cmd)
	}
}
