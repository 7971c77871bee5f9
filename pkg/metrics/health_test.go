package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth() {
	healthChecker = newHealthChecker()
}

func TestUpdateComponent(t *testing.T) {
	resetHealth()

	UpdateComponent(ComponentRuntime, true, "running")
	require.Len(t, healthChecker.components, 1)

	comp := healthChecker.components[ComponentRuntime]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "running", comp.Message)

	UpdateComponent(ComponentRuntime, false, "socket closed")
	require.Len(t, healthChecker.components, 1)
	assert.False(t, healthChecker.components[ComponentRuntime].Healthy)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
	}{
		{
			name:       "no components",
			setup:      func() {},
			wantStatus: "healthy",
		},
		{
			name: "all healthy",
			setup: func() {
				UpdateComponent(ComponentControlPlane, true, "")
				UpdateComponent(ComponentRuntime, true, "")
			},
			wantStatus: "healthy",
		},
		{
			name: "control plane down",
			setup: func() {
				UpdateComponent(ComponentControlPlane, false, "disconnected")
				UpdateComponent(ComponentRuntime, true, "")
			},
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth()
			tt.setup()
			assert.Equal(t, tt.wantStatus, GetHealth().Status)
		})
	}
}

func TestGetHealthComponentMessage(t *testing.T) {
	resetHealth()
	SetVersion("0.3.0")
	UpdateComponent(ComponentControlPlane, false, "disconnected")

	health := GetHealth()
	assert.Equal(t, "unhealthy: disconnected", health.Components[ComponentControlPlane])
	assert.Equal(t, "0.3.0", health.Version)
}

func TestGetReadiness(t *testing.T) {
	resetHealth()

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.NotEmpty(t, readiness.Message)
	assert.Equal(t, "not registered", readiness.Components[ComponentRuntime])

	UpdateComponent(ComponentRuntime, true, "")
	UpdateComponent(ComponentControlPlane, false, "dialing")
	readiness = GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.Equal(t, "waiting for control_plane", readiness.Message)

	UpdateComponent(ComponentControlPlane, true, "")
	assert.Equal(t, "ready", GetReadiness().Status)
}

func TestEndpoints(t *testing.T) {
	resetHealth()
	UpdateComponent(ComponentRuntime, true, "")

	mux := NewMux()

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/live", http.StatusOK},
		{"/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestReadyHandlerBody(t *testing.T) {
	resetHealth()
	UpdateComponent(ComponentRuntime, true, "")
	UpdateComponent(ComponentControlPlane, true, "")

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
	assert.Len(t, body.Components, 2)
}
