package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/deploything/agent/pkg/types"
)

// AgentSnapshot fields
const (
	snapshotTimestamp       protowire.Number = 1
	snapshotContainerStatus protowire.Number = 2
)

// ContainerStatus fields
const (
	statusID       protowire.Number = 1
	statusName     protowire.Number = 2
	statusImageRef protowire.Number = 3
	statusState    protowire.Number = 4
)

// EncodeSnapshot encodes a snapshot as an AgentSnapshot
func EncodeSnapshot(s types.Snapshot) ([]byte, error) {
	ts, err := proto.Marshal(timestamppb.New(s.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot timestamp: %w", err)
	}

	b := appendMessage(nil, snapshotTimestamp, ts)
	for _, c := range s.Containers {
		b = appendMessage(b, snapshotContainerStatus, encodeStatus(c))
	}
	return b, nil
}

func encodeStatus(c types.ContainerStatus) []byte {
	var b []byte
	if c.ID != "" {
		b = appendString(b, statusID, c.ID)
	}
	if c.Name != "" {
		b = appendString(b, statusName, c.Name)
	}
	if c.ImageRef != "" {
		b = appendString(b, statusImageRef, c.ImageRef)
	}
	return appendVarint(b, statusState, uint64(c.State))
}

// DecodeSnapshot decodes an AgentSnapshot payload
func DecodeSnapshot(b []byte) (types.Snapshot, error) {
	var snap types.Snapshot

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case snapshotTimestamp:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			var ts timestamppb.Timestamp
			if err := proto.Unmarshal(v, &ts); err != nil {
				return 0, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
			}
			snap.Timestamp = ts.AsTime()
			return n, nil
		case snapshotContainerStatus:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			status, err := decodeStatus(v)
			if err != nil {
				return 0, err
			}
			snap.Containers = append(snap.Containers, status)
			return n, nil
		default:
			return 0, errSkip
		}
	})
	return snap, err
}

func decodeStatus(b []byte) (types.ContainerStatus, error) {
	var c types.ContainerStatus

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case statusID:
			v, n, err := consumeString(num, typ, b)
			c.ID = v
			return n, err
		case statusName:
			v, n, err := consumeString(num, typ, b)
			c.Name = v
			return n, err
		case statusImageRef:
			v, n, err := consumeString(num, typ, b)
			c.ImageRef = v
			return n, err
		case statusState:
			v, n, err := consumeVarint(num, typ, b)
			c.State = types.ContainerState(int32(v))
			return n, err
		default:
			return 0, errSkip
		}
	})
	return c, err
}
