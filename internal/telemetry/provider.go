package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
)

// newResource creates a resource describing the service.
func newResource(cfg config.Telemetry, o options) *resource.Resource {
	// A standalone resource avoids schema URL conflicts with resource.Default().
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(o.serviceVersion),
	)
}

func skipVerifyConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // User explicitly requested
	}
}

// newSpanExporter creates the OTLP span exporter for the configured protocol.
func newSpanExporter(ctx context.Context, cfg config.Telemetry, o options) (trace.SpanExporter, error) {
	if o.spanExporter != nil {
		return o.spanExporter, nil
	}

	switch cfg.Protocol {
	case config.ProtocolHTTPProtobuf:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.HostPort()),
			otlptracehttp.WithHeaders(cfg.Headers()),
			otlptracehttp.WithTimeout(cfg.Timeout),
		}
		if path, ok := cfg.URLPath("traces"); ok {
			opts = append(opts, otlptracehttp.WithURLPath(path))
		}
		if cfg.Insecure() {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if o.tlsSkipVerify {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(skipVerifyConfig()))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.HostPort()),
			otlptracegrpc.WithHeaders(cfg.Headers()),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure() {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else if o.tlsSkipVerify {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(skipVerifyConfig())))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// newTracerProvider creates a TracerProvider with a batching exporter.
// Every unit is traced; sampling is left to the collector.
func newTracerProvider(ctx context.Context, cfg config.Telemetry, res *resource.Resource, o options) (*trace.TracerProvider, error) {
	exporter, err := newSpanExporter(ctx, cfg, o)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	), nil
}

// newMetricExporter creates the OTLP metric exporter for the configured protocol.
func newMetricExporter(ctx context.Context, cfg config.Telemetry, o options) (metric.Exporter, error) {
	if o.metricExporter != nil {
		return o.metricExporter, nil
	}

	// Cumulative temporality keeps Prometheus-compatible backends happy and
	// ignores OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE set by parents.
	cumulativeSelector := func(metric.InstrumentKind) metricdata.Temporality {
		return metricdata.CumulativeTemporality
	}

	switch cfg.Protocol {
	case config.ProtocolHTTPProtobuf:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.HostPort()),
			otlpmetrichttp.WithHeaders(cfg.Headers()),
			otlpmetrichttp.WithTimeout(cfg.Timeout),
			otlpmetrichttp.WithTemporalitySelector(cumulativeSelector),
		}
		if path, ok := cfg.URLPath("metrics"); ok {
			opts = append(opts, otlpmetrichttp.WithURLPath(path))
		}
		if cfg.Insecure() {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		} else if o.tlsSkipVerify {
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(skipVerifyConfig()))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.HostPort()),
			otlpmetricgrpc.WithHeaders(cfg.Headers()),
			otlpmetricgrpc.WithTimeout(cfg.Timeout),
			otlpmetricgrpc.WithTemporalitySelector(cumulativeSelector),
		}
		if cfg.Insecure() {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		} else if o.tlsSkipVerify {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(skipVerifyConfig())))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
}

// newMeterProvider creates a MeterProvider with a periodic reader.
func newMeterProvider(ctx context.Context, cfg config.Telemetry, res *resource.Resource, o options) (*metric.MeterProvider, error) {
	exporter, err := newMetricExporter(ctx, cfg, o)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(o.metricInterval))),
	), nil
}

// newLogExporter creates the OTLP log exporter for the configured protocol.
func newLogExporter(ctx context.Context, cfg config.Telemetry, o options) (sdklog.Exporter, error) {
	if o.logExporter != nil {
		return o.logExporter, nil
	}

	switch cfg.Protocol {
	case config.ProtocolHTTPProtobuf:
		opts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(cfg.HostPort()),
			otlploghttp.WithHeaders(cfg.Headers()),
			otlploghttp.WithTimeout(cfg.Timeout),
		}
		if path, ok := cfg.URLPath("logs"); ok {
			opts = append(opts, otlploghttp.WithURLPath(path))
		}
		if cfg.Insecure() {
			opts = append(opts, otlploghttp.WithInsecure())
		} else if o.tlsSkipVerify {
			opts = append(opts, otlploghttp.WithTLSClientConfig(skipVerifyConfig()))
		}
		return otlploghttp.New(ctx, opts...)
	default:
		opts := []otlploggrpc.Option{
			otlploggrpc.WithEndpoint(cfg.HostPort()),
			otlploggrpc.WithHeaders(cfg.Headers()),
			otlploggrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure() {
			opts = append(opts, otlploggrpc.WithInsecure())
		} else if o.tlsSkipVerify {
			opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(skipVerifyConfig())))
		}
		return otlploggrpc.New(ctx, opts...)
	}
}

// newLoggerProvider creates a LoggerProvider with a batching processor.
func newLoggerProvider(ctx context.Context, cfg config.Telemetry, res *resource.Resource, o options) (*sdklog.LoggerProvider, error) {
	exporter, err := newLogExporter(ctx, cfg, o)
	if err != nil {
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}
