// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (console + OpenTelemetry via the otelzap bridge)
//   - Context field injection (trace_id, span_id, executing unit)
//   - Sampling below error level (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithExecution(ctx, &logging.Execution{Kind: "Job", Name: "nightly"})
//	logger.Info(ctx, "job finished", zap.Int64("errors", 0))
//
// Entries written while a span is active carry its trace_id and span_id, so
// console output can be matched with the exported trace.
//
// # Testing
//
//	logger := logging.NewTestLogger()
//	runCode(logger.Logger)
//	logger.AssertLogged(t, zapcore.InfoLevel, "job finished")
package logging
