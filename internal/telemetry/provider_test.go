package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
)

func TestNewResource(t *testing.T) {
	cfg := config.NewDefault().WithServiceName("etl")
	o := defaultOptions()
	WithServiceVersion("1.2.3")(&o)

	res := newResource(cfg, o)
	require.NotNil(t, res)

	got := map[string]string{}
	for _, attr := range res.Attributes() {
		got[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, "etl", got["service.name"])
	assert.Equal(t, "1.2.3", got["service.version"])
}

func TestExporters_BothProtocols(t *testing.T) {
	protocols := []config.Protocol{config.ProtocolGRPC, config.ProtocolHTTPProtobuf}
	for _, p := range protocols {
		t.Run(string(p), func(t *testing.T) {
			cfg := config.NewDefault().
				WithEndpoint("http://localhost:4318").
				WithProtocol(p).
				WithHeaders(map[string]string{"authorization": "Bearer abc"}).
				WithTimeout(time.Second)
			o := defaultOptions()
			ctx := context.Background()

			spanExp, err := newSpanExporter(ctx, cfg, o)
			require.NoError(t, err)
			metricExp, err := newMetricExporter(ctx, cfg, o)
			require.NoError(t, err)
			logExp, err := newLogExporter(ctx, cfg, o)
			require.NoError(t, err)

			shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			_ = spanExp.Shutdown(shutdownCtx)
			_ = metricExp.Shutdown(shutdownCtx)
			_ = logExp.Shutdown(shutdownCtx)
		})
	}
}

func TestSpanExporter_HTTPKeepsPathPrefix(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.NewDefault().
		WithEndpoint(srv.URL + "/otlp").
		WithProtocol(config.ProtocolHTTPProtobuf).
		WithTimeout(time.Second)
	ctx := context.Background()

	exp, err := newSpanExporter(ctx, cfg, defaultOptions())
	require.NoError(t, err)
	defer func() { _ = exp.Shutdown(ctx) }()

	spans := []trace.ReadOnlySpan{tracetest.SpanStub{Name: "J"}.Snapshot()}
	require.NoError(t, exp.ExportSpans(ctx, spans))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/otlp/v1/traces"}, paths)
}

func TestOptions_IgnoreZeroValues(t *testing.T) {
	o := defaultOptions()
	WithMetricInterval(0)(&o)
	WithShutdownTimeout(-time.Second)(&o)
	WithServiceVersion("")(&o)
	WithLogger(nil)(&o)

	assert.Equal(t, 15*time.Second, o.metricInterval)
	assert.Equal(t, 5*time.Second, o.shutdownTimeout)
	assert.Equal(t, "0.1.0", o.serviceVersion)
	assert.NotNil(t, o.logger)
}
