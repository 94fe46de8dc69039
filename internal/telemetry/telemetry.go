package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
)

// Telemetry owns the tracer, meter and logger providers for the process.
//
// Create it once at startup and pass its Tracer/Meter/Logger to the
// components that need them. Telemetry failures never stop the
// application; a degraded instance hands out no-op instruments.
type Telemetry struct {
	config config.Telemetry
	opts   options

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider

	// Health tracking
	healthy  atomic.Bool
	degraded atomic.Bool
}

// New creates a Telemetry instance and initializes providers.
//
// Without an endpoint the instance is disabled and returns no-op
// instruments. A malformed endpoint or an exporter construction error is
// logged as a warning and degrades the instance instead of failing. Only
// settings the Loader never produces (empty service name, unknown
// protocol, non-positive timeout) are returned as errors.
func New(ctx context.Context, cfg config.Telemetry, opts ...Option) (*Telemetry, error) {
	if err := cfg.ValidateSettings(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &Telemetry{config: cfg, opts: o}
	t.healthy.Store(true)

	if err := cfg.ValidateEndpoint(); err != nil {
		t.setDegraded("endpoint", err)
		return t, nil
	}

	if !cfg.Enabled() && o.spanExporter == nil {
		o.logger.Info("no OpenTelemetry collector endpoint configured, tracing disabled",
			zap.String("service", cfg.ServiceName))
		return t, nil
	}

	o.logger.Info("initializing OpenTelemetry",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", string(cfg.Protocol)))

	res := newResource(cfg, o)

	tp, err := newTracerProvider(ctx, cfg, res, o)
	if err != nil {
		t.setDegraded("tracer provider", err)
	} else {
		t.tracerProvider = tp
	}

	mp, err := newMeterProvider(ctx, cfg, res, o)
	if err != nil {
		t.setDegraded("meter provider", err)
	} else {
		t.meterProvider = mp
	}

	lp, err := newLoggerProvider(ctx, cfg, res, o)
	if err != nil {
		t.setDegraded("logger provider", err)
	} else {
		t.loggerProvider = lp
	}

	// Export failures happen in background goroutines and must not surface
	// to callers; route them to the diagnostic log.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		o.logger.Debug("telemetry export failed", zap.Error(err))
	}))

	return t, nil
}

// Config returns the settings the instance was built from.
func (t *Telemetry) Config() config.Telemetry {
	if t == nil {
		return config.NewDefault()
	}
	return t.config
}

// Tracer returns a tracer for the given instrumentation scope.
//
// Returns a no-op tracer if telemetry is disabled or degraded.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return tracenoop.NewTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope.
//
// Returns a no-op meter if telemetry is disabled or degraded.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return metricnoop.NewMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// Logger returns an OTel logger for the given instrumentation scope.
//
// Returns a no-op logger if telemetry is disabled or degraded.
func (t *Telemetry) Logger(name string, opts ...log.LoggerOption) log.Logger {
	if t == nil || t.loggerProvider == nil {
		return lognoop.NewLoggerProvider().Logger(name, opts...)
	}
	return t.loggerProvider.Logger(name, opts...)
}

// LoggerProvider returns the log provider for the zap bridge, or nil when
// log export is not configured.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.loggerProvider == nil {
		return nil
	}
	return t.loggerProvider
}

// Shutdown flushes and closes all providers.
//
// Register it as a guaranteed exit action. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.shutdownTimeout)
		defer cancel()
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}

	t.healthy.Store(false)
	return errors.Join(errs...)
}

// ForceFlush immediately exports all pending telemetry data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log flush: %w", err))
		}
	}

	return errors.Join(errs...)
}

// HealthStatus reports whether the providers are usable.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	return HealthStatus{
		Healthy:  t.healthy.Load(),
		Degraded: t.degraded.Load(),
	}
}

// IsEnabled returns true if spans are exported.
func (t *Telemetry) IsEnabled() bool {
	if t == nil {
		return false
	}
	return t.tracerProvider != nil && t.healthy.Load()
}

// setDegraded marks telemetry as degraded due to an initialization error.
func (t *Telemetry) setDegraded(component string, err error) {
	t.degraded.Store(true)
	t.opts.logger.Warn("OpenTelemetry initialization failed, continuing without it",
		zap.String("component", component),
		zap.Error(err))
}
