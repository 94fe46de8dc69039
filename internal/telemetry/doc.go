// Package telemetry owns the OpenTelemetry providers used by jobtrace.
//
// # Overview
//
// A single Telemetry instance builds a tracer, meter and logger provider
// that export over OTLP (grpc or http/protobuf) to the collector named in
// config.Telemetry. Spans and log records go through batch processors and
// metrics through a periodic reader, so nothing here blocks a running job.
//
// # Usage
//
//	cfg := config.Loader{Properties: config.NewEnvProperties()}.Load()
//	tel, err := telemetry.New(ctx, cfg, telemetry.WithLogger(zl))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	tracer := tel.Tracer("jobtrace")
//	meter := tel.Meter("jobtrace")
//	logger := tel.Logger("jobtrace")
//
// # Error Handling
//
// Telemetry failures do not stop the application. Without an endpoint the
// instance is disabled; if an exporter cannot be built the instance is
// degraded. Both hand out no-op instruments. Export errors raised later by
// the SDK are routed to the debug log.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
