package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/deploything/agent/pkg/types"
)

// runFrame builds a RemoteCommand the way the control plane's generated code does
func runFrame(image, tag, from, to string) []byte {
	var pm []byte
	pm = protowire.AppendTag(pm, 1, protowire.BytesType)
	pm = protowire.AppendString(pm, from)
	pm = protowire.AppendTag(pm, 2, protowire.BytesType)
	pm = protowire.AppendString(pm, to)

	var hc []byte
	hc = protowire.AppendTag(hc, 1, protowire.BytesType)
	hc = protowire.AppendBytes(hc, pm)

	var params []byte
	params = protowire.AppendTag(params, 1, protowire.BytesType)
	params = protowire.AppendString(params, image)
	params = protowire.AppendTag(params, 2, protowire.BytesType)
	params = protowire.AppendString(params, tag)
	params = protowire.AppendTag(params, 3, protowire.BytesType)
	params = protowire.AppendBytes(params, hc)

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, params)
}

func TestDecodeRunCommand(t *testing.T) {
	cmd, err := DecodeCommand(runFrame("httpbin", "latest", "8080/tcp", "8080"))
	require.NoError(t, err)

	run, ok := cmd.(types.RunCommand)
	require.True(t, ok, "expected RunCommand, got %T", cmd)
	assert.Equal(t, "httpbin", run.ImageName)
	assert.Equal(t, "latest", run.Tag)
	require.NotNil(t, run.HostConfig)
	assert.Equal(t, "8080/tcp", run.HostConfig.FromPort)
	assert.Equal(t, "8080", run.HostConfig.ToPort)
}

func TestDecodeRunCommandWithoutHostConfig(t *testing.T) {
	b, err := EncodeCommand(types.RunCommand{ImageName: "nginx"})
	require.NoError(t, err)

	cmd, err := DecodeCommand(b)
	require.NoError(t, err)
	assert.Equal(t, types.RunCommand{ImageName: "nginx"}, cmd)
}

func TestDecodeStopCommand(t *testing.T) {
	var params []byte
	params = protowire.AppendTag(params, 1, protowire.BytesType)
	params = protowire.AppendString(params, "abc123")

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, params)

	cmd, err := DecodeCommand(b)
	require.NoError(t, err)
	assert.Equal(t, types.StopCommand{ContainerID: "abc123"}, cmd)
}

func TestDecodeCommandSkipsUnknownFields(t *testing.T) {
	b := runFrame("httpbin", "latest", "8080/tcp", "8080")
	b = protowire.AppendTag(b, 15, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)
	b = protowire.AppendTag(b, 16, protowire.BytesType)
	b = protowire.AppendString(b, "future field")

	cmd, err := DecodeCommand(b)
	require.NoError(t, err)
	assert.Equal(t, types.CommandKindRun, cmd.Kind())
}

func TestDecodeCommandErrors(t *testing.T) {
	full := runFrame("httpbin", "latest", "8080/tcp", "8080")

	wrongType := protowire.AppendTag(nil, 1, protowire.VarintType)
	wrongType = protowire.AppendVarint(wrongType, 7)

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty payload", payload: nil},
		{name: "only unknown fields", payload: protowire.AppendVarint(protowire.AppendTag(nil, 9, protowire.VarintType), 1)},
		{name: "truncated", payload: full[:len(full)-3]},
		{name: "garbage", payload: []byte{0xff, 0xff, 0xff}},
		{name: "wrong wire type", payload: wrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.payload)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestResponseEncoding(t *testing.T) {
	tests := []struct {
		name string
		resp types.Response
	}{
		{name: "started", resp: types.StartedResponse{ContainerID: "abc"}},
		{name: "stopped", resp: types.StoppedResponse{ContainerID: "abc"}},
		{name: "error", resp: types.ErrorResponse{Message: "Unknown container: abc"}},
		{name: "empty id keeps variant", resp: types.StartedResponse{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeResponse(tt.resp)
			require.NoError(t, err)

			got, err := DecodeResponse(b)
			require.NoError(t, err)
			assert.Equal(t, tt.resp, got)
		})
	}
}

// The expected bytes follow the field numbers in agent.proto, so a change on
// either side shows up here
func TestResponseBytesMatchSchema(t *testing.T) {
	tests := []struct {
		name string
		resp types.Response
		want []byte
	}{
		{name: "started", resp: types.StartedResponse{ContainerID: "abc"}, want: []byte{0x0a, 0x05, 0x0a, 0x03, 'a', 'b', 'c'}},
		{name: "stopped", resp: types.StoppedResponse{ContainerID: "abc"}, want: []byte{0x12, 0x05, 0x0a, 0x03, 'a', 'b', 'c'}},
		{name: "error", resp: types.ErrorResponse{Message: "no"}, want: []byte{0x1a, 0x04, 0x0a, 0x02, 'n', 'o'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeResponse(tt.resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)
		})
	}
}

func TestEncodeResponseNil(t *testing.T) {
	_, err := EncodeResponse(nil)
	assert.Error(t, err)
}

func TestSnapshotEncoding(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 15, 500, time.UTC)
	snap := types.Snapshot{
		Timestamp: ts,
		Containers: []types.ContainerStatus{
			{ID: "abc", Name: "web", ImageRef: "nginx:latest", State: types.ContainerStateRunning},
			{ID: "def", Name: "job", ImageRef: "busybox:1", State: types.ContainerStateExited},
			{ID: "ghi", State: types.ContainerStateUnspecified},
		},
	}

	b, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	got, err := DecodeSnapshot(b)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, snap.Containers, got.Containers)
}

func TestEncodeSnapshotEmpty(t *testing.T) {
	b, err := EncodeSnapshot(types.Snapshot{Timestamp: time.Unix(10, 0)})
	require.NoError(t, err)

	got, err := DecodeSnapshot(b)
	require.NoError(t, err)
	assert.Empty(t, got.Containers)
	assert.Equal(t, int64(10), got.Timestamp.Unix())
}
