package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jobtrace/internal/engine"
	"github.com/fyrsmithlabs/jobtrace/internal/telemetry"
	"github.com/fyrsmithlabs/jobtrace/internal/tracing"
)

type fakeProgress struct {
	sum     engine.Summary
	running bool
}

func (f *fakeProgress) Progress() engine.Summary { return f.sum }
func (f *fakeProgress) Running() bool            { return f.running }

type fakeHealth struct {
	status  telemetry.HealthStatus
	enabled bool
}

func (f *fakeHealth) Health() telemetry.HealthStatus { return f.status }
func (f *fakeHealth) IsEnabled() bool                { return f.enabled }

func setupTestServer(t *testing.T, src Sources) *Server {
	t.Helper()
	if src.Progress == nil {
		src.Progress = &fakeProgress{}
	}
	if src.Health == nil {
		src.Health = &fakeHealth{status: telemetry.HealthStatus{Healthy: true}}
	}
	s, err := NewServer(src, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s := setupTestServer(t, Sources{})
		assert.Equal(t, "localhost:9464", s.Addr())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Sources{Progress: &fakeProgress{}, Health: &fakeHealth{}}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error without reporters", func(t *testing.T) {
		_, err := NewServer(Sources{Health: &fakeHealth{}}, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "progress reporter")
		_, err = NewServer(Sources{Progress: &fakeProgress{}}, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "health reporter")
	})
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		health telemetry.HealthStatus
		code   int
		status string
	}{
		{"healthy", telemetry.HealthStatus{Healthy: true}, http.StatusOK, "ok"},
		{"degraded", telemetry.HealthStatus{Healthy: true, Degraded: true}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, Sources{Health: &fakeHealth{status: tt.health}})

			rec := get(s, "/health")
			assert.Equal(t, tt.code, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestHandleStatus(t *testing.T) {
	s := setupTestServer(t, Sources{
		Progress: &fakeProgress{
			sum:     engine.Summary{Jobs: 2, DataFlows: 1, Steps: 4, Actions: 3},
			running: true,
		},
		Health:  &fakeHealth{status: telemetry.HealthStatus{Healthy: true}, enabled: true},
		Version: "1.2.3",
	})

	rec := get(s, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusResponse{
		Status:    "running",
		Version:   "1.2.3",
		Progress:  ProgressStatus{Jobs: 2, DataFlows: 1, Steps: 4, Actions: 3},
		Telemetry: TelemetryStatus{Exporting: true},
	}, resp)
}

func TestHandleStatus_Idle(t *testing.T) {
	s := setupTestServer(t, Sources{})

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(get(s, "/api/v1/status").Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := tracing.NewStats(reg)
	stats.RecordViolation(tracing.ReasonNotStarted)

	s := setupTestServer(t, Sources{Metrics: reg})

	rec := get(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `jobtrace_lifecycle_violations_total{reason="not_started"} 1`)
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	s := setupTestServer(t, Sources{})
	assert.Equal(t, http.StatusNotFound, get(s, "/metrics").Code)
}

func TestServer_StartShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	s, err := NewServer(Sources{Progress: &fakeProgress{}, Health: &fakeHealth{}}, zap.NewNop(),
		&Config{Host: "127.0.0.1", Port: port})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}
