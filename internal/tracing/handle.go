package tracing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Handle is the in-flight span of one unit. It lives in the unit's
// extension data between Begin and End and is closed exactly once.
type Handle struct {
	span  trace.Span
	kind  unit.Kind
	name  string
	start time.Time

	ended atomic.Bool

	mu      sync.Mutex
	endTime time.Time
	status  Status
}

func newHandle(span trace.Span, kind unit.Kind, name string, start time.Time) *Handle {
	return &Handle{span: span, kind: kind, name: name, start: start}
}

// Kind returns the kind of the unit that owns the span.
func (h *Handle) Kind() unit.Kind { return h.kind }

// Name returns the span name.
func (h *Handle) Name() string { return h.name }

// StartTime returns the span start timestamp.
func (h *Handle) StartTime() time.Time { return h.start }

// SpanContext returns the span's identifiers.
func (h *Handle) SpanContext() trace.SpanContext {
	return h.span.SpanContext()
}

// Context returns ctx with the span installed as the active span. The
// context stays usable for log correlation after the span has ended.
func (h *Handle) Context(ctx context.Context) context.Context {
	return trace.ContextWithSpan(ctx, h.span)
}

// Ended reports whether the span has been closed.
func (h *Handle) Ended() bool {
	return h.ended.Load()
}

// EndTime returns the timestamp the span was closed at, or the zero time
// while it is open.
func (h *Handle) EndTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.endTime
}

// Status returns the final status, valid once Ended is true.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// end sets the status and closes the span at ts. It returns false if the
// span was already closed.
func (h *Handle) end(status Status, ts time.Time, kvs ...attribute.KeyValue) bool {
	if !h.ended.CompareAndSwap(false, true) {
		return false
	}

	h.mu.Lock()
	h.endTime = ts
	h.status = status
	h.mu.Unlock()

	if len(kvs) > 0 {
		h.span.SetAttributes(kvs...)
	}
	if status.OK {
		h.span.SetStatus(codes.Ok, "")
	} else {
		h.span.SetStatus(codes.Error, status.Message)
	}
	h.span.End(trace.WithTimestamp(ts))
	return true
}
