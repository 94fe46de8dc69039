package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context: the active span and
// the unit being executed.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if u := ExecutionFromContext(ctx); u != nil {
		fields = append(fields, zap.String("unit.kind", u.Kind))
		if u.Name != "" {
			fields = append(fields, zap.String("unit.name", u.Name))
		}
		if u.ID != "" {
			fields = append(fields, zap.String("unit.id", u.ID))
		}
	}

	return fields
}

type executionCtxKey struct{}
type loggerCtxKey struct{}

// Execution identifies the unit a log line was written for.
type Execution struct {
	Kind string
	Name string
	ID   string
}

// ExecutionFromContext extracts the execution from context.
func ExecutionFromContext(ctx context.Context) *Execution {
	if e, ok := ctx.Value(executionCtxKey{}).(*Execution); ok {
		return e
	}
	return nil
}

// WithExecution adds the executing unit to context. A nil or kindless
// execution leaves ctx unchanged.
func WithExecution(ctx context.Context, e *Execution) context.Context {
	if e == nil || e.Kind == "" {
		return ctx
	}
	return context.WithValue(ctx, executionCtxKey{}, e)
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
