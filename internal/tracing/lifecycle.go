package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/jobtrace/internal/attrs"
	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Lifecycle errors. Callers log them and carry on; none of them should
// change how the observed unit runs.
var (
	ErrAlreadyStarted = errors.New("span already started for unit")
	ErrNotStarted     = errors.New("no span started for unit")
	ErrExcluded       = errors.New("unit is excluded from tracing")
	ErrNoExtension    = errors.New("unit has no extension data")
)

// SpanOptions describes the span Begin creates.
type SpanOptions struct {
	// Name defaults to the unit's name, then its kind.
	Name string
	// Kind defaults to trace.SpanKindInternal.
	Kind       trace.SpanKind
	Attributes []attribute.KeyValue
	// Start is the engine's start timestamp; zero means now.
	Start time.Time
}

// Status is the final span status.
type Status struct {
	OK      bool
	Message string
}

// StatusOK is the status of a unit that finished without errors.
var StatusOK = Status{OK: true}

// StatusFromResult derives the span status from an engine result.
func StatusFromResult(res unit.Result) Status {
	if res.OK() {
		return StatusOK
	}
	return Status{Message: fmt.Sprintf("finished with %d error(s)", res.Errors)}
}

// Manager begins and ends unit spans. It is safe for concurrent use by
// sibling units; a single unit is begun and ended by its owning goroutine.
type Manager struct {
	tracer   trace.Tracer
	resolver *Resolver
	logger   *zap.Logger
	stats    *Stats
	limiter  *rate.Limiter
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStats records lifecycle events in s.
func WithStats(s *Stats) ManagerOption {
	return func(m *Manager) { m.stats = s }
}

// WithResolver replaces the default resolver.
func WithResolver(r *Resolver) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithDiagnosticLimit caps lifecycle warnings to r per second with the
// given burst.
func WithDiagnosticLimit(r rate.Limit, burst int) ManagerOption {
	return func(m *Manager) { m.limiter = rate.NewLimiter(r, burst) }
}

// WithClock sets the clock used when the engine supplies no timestamp.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a manager creating spans with tracer.
func NewManager(tracer trace.Tracer, opts ...ManagerOption) *Manager {
	m := &Manager{
		tracer:   tracer,
		resolver: NewResolver(),
		logger:   zap.NewNop(),
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stats returns the stats the manager records into, or nil.
func (m *Manager) Stats() *Stats { return m.stats }

// Resolve exposes the manager's resolver.
func (m *Manager) Resolve(u unit.Unit) TraceContext {
	return m.resolver.Resolve(u)
}

// Begin starts u's span under the resolved parent and publishes the handle
// in u's extension data.
//
// If u already has a handle, that handle is returned with
// ErrAlreadyStarted and nothing is overwritten. Units marked
// unit.KeyLoggingInternal, and everything running inside them, get no span
// and ErrExcluded.
func (m *Manager) Begin(ctx context.Context, u unit.Unit, opts SpanOptions) (*Handle, error) {
	if u == nil {
		return nil, ErrNoExtension
	}
	ext := u.ExtensionData()
	if ext == nil {
		return nil, ErrNoExtension
	}
	if excluded(u) {
		m.stats.RecordViolation(ReasonExcluded)
		return nil, ErrExcluded
	}
	if existing := storedHandle(ext); existing != nil {
		m.violation(ctx, ReasonAlreadyStarted, u, zapcore.WarnLevel)
		return existing, ErrAlreadyStarted
	}

	tc := m.resolver.Resolve(u)

	start := opts.Start
	if start.IsZero() {
		start = m.now()
	}
	kind := opts.Kind
	if kind == trace.SpanKindUnspecified {
		kind = trace.SpanKindInternal
	}
	name := spanName(u, opts.Name)

	startOpts := []trace.SpanStartOption{
		trace.WithTimestamp(start),
		trace.WithSpanKind(kind),
		trace.WithAttributes(unitAttributes(u)...),
		trace.WithAttributes(opts.Attributes...),
	}
	if tc.IsRoot() {
		startOpts = append(startOpts, trace.WithNewRoot())
	}

	_, span := m.tracer.Start(tc.Context(ctx), name, startOpts...)
	h := newHandle(span, u.Kind(), name, start)

	// Another Begin for the same unit may have published first. Only one
	// handle is kept; ours is dropped unended and so never exported.
	if actual, loaded := ext.LoadOrStore(unit.KeySpan, h); loaded {
		m.violation(ctx, ReasonAlreadyStarted, u, zapcore.WarnLevel)
		if winner, ok := actual.(*Handle); ok {
			return winner, ErrAlreadyStarted
		}
		return nil, ErrAlreadyStarted
	}

	m.stats.started(u.Kind())
	m.logger.Debug("span started",
		zap.Stringer("kind", u.Kind()),
		zap.String("span", name),
		zap.Stringer("parent", tc.Source()),
		zap.String("trace_id", h.SpanContext().TraceID().String()))
	return h, nil
}

// End removes u's handle and closes the span at end with the given status.
// The handle is taken out of the extension data before closing, so a second
// End finds nothing and returns ErrNotStarted. A zero end falls back to now.
func (m *Manager) End(ctx context.Context, u unit.Unit, status Status, end time.Time, kvs ...attribute.KeyValue) (*Handle, error) {
	if u == nil || u.ExtensionData() == nil {
		return nil, ErrNoExtension
	}

	v, ok := u.ExtensionData().LoadAndDelete(unit.KeySpan)
	h, isHandle := v.(*Handle)
	if !ok || !isHandle || h == nil {
		m.violation(ctx, ReasonNotStarted, u, zapcore.DebugLevel)
		return nil, ErrNotStarted
	}

	if end.IsZero() {
		end = m.now()
		m.logger.Debug("no end timestamp supplied, closing span now",
			zap.Stringer("kind", u.Kind()),
			zap.String("span", h.Name()))
	}

	if !h.end(status, end, kvs...) {
		m.violation(ctx, ReasonNotStarted, u, zapcore.DebugLevel)
		return h, ErrNotStarted
	}

	m.stats.ended(h.Kind(), status.OK)
	m.logger.Debug("span ended",
		zap.Stringer("kind", h.Kind()),
		zap.String("span", h.Name()),
		zap.Bool("ok", status.OK))
	return h, nil
}

// violation counts a lifecycle violation and logs it, rate limited so a
// misregistered hook cannot flood the log.
func (m *Manager) violation(_ context.Context, reason string, u unit.Unit, level zapcore.Level) {
	m.stats.RecordViolation(reason)
	if !m.limiter.Allow() {
		return
	}
	id := u.Identity()
	m.logger.Check(level, "span lifecycle violation").Write(
		zap.String("reason", reason),
		zap.Stringer("kind", u.Kind()),
		zap.String("unit", id.Name),
		zap.String("execution_id", id.ExecutionID))
}

// maxAncestors bounds the parent walk in case an engine builds a cycle.
const maxAncestors = 256

// excluded reports whether u or any unit it runs inside is marked
// unit.KeyLoggingInternal. Both the parent and the owning container are
// followed.
func excluded(u unit.Unit) bool {
	for i := 0; u != nil && i < maxAncestors; i++ {
		if u.ExtensionData().Has(unit.KeyLoggingInternal) {
			return true
		}
		if owner := unit.OwnerOf(u); owner != nil && owner.ExtensionData().Has(unit.KeyLoggingInternal) {
			return true
		}
		u = u.Parent()
	}
	return false
}

func storedHandle(ext *unit.ExtensionData) *Handle {
	v, ok := ext.Load(unit.KeySpan)
	if !ok {
		return nil
	}
	h, _ := v.(*Handle)
	return h
}

func spanName(u unit.Unit, name string) string {
	if name != "" {
		return name
	}
	if n := u.Identity().Name; n != "" {
		return n
	}
	return u.Kind().String()
}

// unitAttributes returns the component and identity attributes of u.
// Empty identity fields are omitted.
func unitAttributes(u unit.Unit) []attribute.KeyValue {
	id := u.Identity()
	b := attrs.NewBuilder(10).Add(attrs.Component.String(u.Kind().String()))

	switch u.Kind() {
	case unit.KindJob:
		b.Str(attrs.JobEngine, id.EngineID).
			Str(attrs.JobRunConfiguration, id.RunConfiguration).
			Str(attrs.JobExecutionID, id.ExecutionID).
			Str(attrs.JobContainerID, id.ContainerID).
			Str(attrs.JobFilePath, id.FilePath).
			Str(attrs.JobVersion, id.Version)
	case unit.KindDataFlow:
		b.Str(attrs.DataFlowEngine, id.EngineID).
			Str(attrs.DataFlowExecutionID, id.ExecutionID).
			Str(attrs.DataFlowContainerID, id.ContainerID).
			Str(attrs.DataFlowFilePath, id.FilePath).
			Str(attrs.DataFlowVersion, id.Version)
	case unit.KindStep:
		b.Str(attrs.StepPluginID, id.PluginID)
	case unit.KindAction:
		b.Str(attrs.ActionPluginID, id.PluginID)
	}

	b.Str(attrs.ServiceProject, id.Project).
		Str(attrs.ServiceEnvironment, id.Environment)
	return b.Build()
}
