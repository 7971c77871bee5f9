package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploything/agent/pkg/log"
	"github.com/deploything/agent/pkg/runtime/runtimetest"
	"github.com/deploything/agent/pkg/types"
)

var portMap = &types.HostConfig{FromPort: "8080/tcp", ToPort: "8080"}

func TestSpawnThenTerminate(t *testing.T) {
	rt := runtimetest.NewFake()
	o := New(rt)
	ctx := context.Background()

	id, err := o.Spawn(ctx, "httpbin", "latest", portMap)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, o.Len())

	managed, ok := o.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "httpbin:latest", managed.ImageRef)

	stopped, err := o.Terminate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, stopped)
	assert.Zero(t, o.Len())
	assert.Equal(t, StopGracePeriod, rt.LastGrace())

	assert.Equal(t, []string{
		"pull httpbin:latest",
		"create httpbin:latest",
		"start " + id,
		"stop " + id,
	}, rt.Calls())
}

func TestSpawnFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		setup     func(*runtimetest.Fake)
		stage     Stage
		wantCalls int
		contains  string
	}{
		{
			name:      "pull fails",
			setup:     func(f *runtimetest.Fake) { f.PullErr = boom },
			stage:     StagePull,
			wantCalls: 1,
			contains:  "httpbin:latest",
		},
		{
			name:      "create fails",
			setup:     func(f *runtimetest.Fake) { f.CreateErr = boom },
			stage:     StageCreate,
			wantCalls: 2,
			contains:  "httpbin:latest",
		},
		{
			name:      "start fails",
			setup:     func(f *runtimetest.Fake) { f.StartErr = boom },
			stage:     StageStart,
			wantCalls: 4,
			contains:  "ctr-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := runtimetest.NewFake()
			tt.setup(rt)
			o := New(rt)

			id, err := o.Spawn(context.Background(), "httpbin", "latest", nil)
			require.Error(t, err)
			assert.Empty(t, id)
			assert.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tt.contains)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)

			assert.Zero(t, o.Len(), "failed spawn must not register a container")
			assert.Len(t, rt.Calls(), tt.wantCalls)
		})
	}
}

func TestTerminateUnknownContainer(t *testing.T) {
	rt := runtimetest.NewFake()
	o := New(rt)

	_, err := o.Terminate(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown container")

	var unknown *UnknownContainerError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "does-not-exist", unknown.ID)

	assert.Zero(t, rt.CallCount("stop"), "runtime must not be contacted for unknown ids")
}

func TestTerminateFailureDropsEntry(t *testing.T) {
	rt := runtimetest.NewFake()
	o := New(rt)
	ctx := context.Background()

	id, err := o.Spawn(ctx, "nginx", "", nil)
	require.NoError(t, err)

	rt.StopErr = errors.New("daemon unavailable")
	_, err = o.Terminate(ctx, id)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageStop, stageErr.Stage)
	assert.Equal(t, id, stageErr.Ref)

	_, ok := o.Lookup(id)
	assert.False(t, ok)

	// A retry is refused as unknown
	rt.StopErr = nil
	_, err = o.Terminate(ctx, id)
	var unknown *UnknownContainerError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, 1, rt.CallCount("stop"))
}

func TestStartFailureRemovesContainer(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.StartErr = errors.New("port already allocated")
	o := New(rt)
	ctx := context.Background()

	_, err := o.Spawn(ctx, "httpbin", "latest", portMap)
	require.Error(t, err)

	assert.Equal(t, []string{
		"pull httpbin:latest",
		"create httpbin:latest",
		"start ctr-1",
		"remove ctr-1",
	}, rt.Calls())

	listed, err := rt.ListContainers(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed, "a container that never started must not be reported")
}

func TestStartFailureKeepsStartError(t *testing.T) {
	rt := runtimetest.NewFake()
	rt.StartErr = errors.New("port already allocated")
	rt.RemoveErr = errors.New("daemon unavailable")
	o := New(rt)

	_, err := o.Spawn(context.Background(), "httpbin", "latest", nil)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageStart, stageErr.Stage)
	assert.ErrorIs(t, err, rt.StartErr)
	assert.Equal(t, 1, rt.CallCount("remove"))
	assert.Zero(t, o.Len())
}

func TestContainerLogsCarryID(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: &buf})
	defer log.Init(log.Config{Level: log.InfoLevel})

	o := New(runtimetest.NewFake())
	ctx := context.Background()

	id, err := o.Spawn(ctx, "nginx", "latest", nil)
	require.NoError(t, err)
	_, err = o.Terminate(ctx, id)
	require.NoError(t, err)

	byMessage := map[string]map[string]interface{}{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		byMessage[entry["message"].(string)] = entry
	}

	for _, msg := range []string{"Container created", "Container started", "Container stopped"} {
		entry, ok := byMessage[msg]
		require.True(t, ok, msg)
		assert.Equal(t, id, entry["container_id"], msg)
	}
}
