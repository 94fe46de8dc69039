package telemetry

import (
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Option configures provider construction.
type Option func(*options)

type options struct {
	serviceVersion  string
	metricInterval  time.Duration
	shutdownTimeout time.Duration
	tlsSkipVerify   bool
	logger          *zap.Logger

	// Exporter overrides, mainly for tests.
	spanExporter   trace.SpanExporter
	metricExporter sdkmetric.Exporter
	logExporter    sdklog.Exporter
}

func defaultOptions() options {
	return options{
		serviceVersion:  "0.1.0",
		metricInterval:  15 * time.Second,
		shutdownTimeout: 5 * time.Second,
		logger:          zap.NewNop(),
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) Option {
	return func(o *options) {
		if v != "" {
			o.serviceVersion = v
		}
	}
}

// WithMetricInterval sets the periodic metric export interval.
func WithMetricInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.metricInterval = d
		}
	}
}

// WithShutdownTimeout bounds Shutdown when the caller's context has no
// deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithTLSSkipVerify disables certificate verification for TLS endpoints
// signed by an internal CA.
func WithTLSSkipVerify(skip bool) Option {
	return func(o *options) {
		o.tlsSkipVerify = skip
	}
}

// WithLogger sets the logger for initialization and export diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTraceExporter overrides the OTLP span exporter.
func WithTraceExporter(exp trace.SpanExporter) Option {
	return func(o *options) {
		o.spanExporter = exp
	}
}

// WithMetricExporter overrides the OTLP metric exporter.
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) {
		o.metricExporter = exp
	}
}

// WithLogExporter overrides the OTLP log exporter.
func WithLogExporter(exp sdklog.Exporter) Option {
	return func(o *options) {
		o.logExporter = exp
	}
}
