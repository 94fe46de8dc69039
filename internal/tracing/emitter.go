package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jobtrace/internal/attrs"
	"github.com/fyrsmithlabs/jobtrace/internal/secrets"
	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Completion counter names.
const (
	CounterJob      = "job.execution.count"
	CounterDataFlow = "dataflow.execution.count"
	CounterStep     = "step.execution.count"
	CounterAction   = "action.execution.count"
)

var counterDescriptions = map[string]string{
	CounterJob:      "Number of job executions",
	CounterDataFlow: "Number of data flow executions",
	CounterStep:     "Number of step executions",
	CounterAction:   "Number of action executions",
}

// CounterName returns the completion counter for kind, or "" for an
// unknown kind.
func CounterName(kind unit.Kind) string {
	switch kind {
	case unit.KindJob:
		return CounterJob
	case unit.KindDataFlow:
		return CounterDataFlow
	case unit.KindStep:
		return CounterStep
	case unit.KindAction:
		return CounterAction
	default:
		return ""
	}
}

// Emitter records completion counters and outcome log records. It never
// returns errors; instrument failures are logged at debug and dropped.
type Emitter struct {
	meter  metric.Meter
	logs   otellog.Logger
	logger *zap.Logger
	now    func() time.Time
	// scrubber redacts outcome log bodies; nil sends them as is.
	scrubber *secrets.Scrubber

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithScrubber redacts secrets from outcome log bodies before they are
// emitted.
func WithScrubber(s *secrets.Scrubber) EmitterOption {
	return func(e *Emitter) {
		e.scrubber = s
	}
}

// NewEmitter returns an emitter writing to meter and logs. diag may be nil.
func NewEmitter(meter metric.Meter, logs otellog.Logger, diag *zap.Logger, opts ...EmitterOption) *Emitter {
	if diag == nil {
		diag = zap.NewNop()
	}
	e := &Emitter{
		meter:    meter,
		logs:     logs,
		logger:   diag,
		now:      time.Now,
		counters: make(map[string]metric.Int64Counter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordCompletion adds one to the named counter.
func (e *Emitter) RecordCompletion(ctx context.Context, name string, kvs ...attribute.KeyValue) {
	c, ok := e.counter(name)
	if !ok {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(kvs...))
}

func (e *Emitter) counter(name string) (metric.Int64Counter, bool) {
	if name == "" {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.counters[name]; ok {
		return c, true
	}

	opts := []metric.Int64CounterOption{metric.WithUnit("{execution}")}
	if desc, ok := counterDescriptions[name]; ok {
		opts = append(opts, metric.WithDescription(desc))
	}
	c, err := e.meter.Int64Counter(name, opts...)
	if err != nil {
		e.logger.Debug("failed to create counter", zap.String("counter", name), zap.Error(err))
		return nil, false
	}
	e.counters[name] = c
	return c, true
}

// LogOutcome emits one log record correlated with h's span and stamped
// with its end time. It reports whether a record was emitted: nothing is
// sent for an empty body or a span that has not ended yet.
func (e *Emitter) LogOutcome(ctx context.Context, h *Handle, severity otellog.Severity, body string, kvs ...attribute.KeyValue) bool {
	if body == "" {
		return false
	}
	if h == nil || !h.Ended() {
		e.logger.Debug("dropping outcome log for span that has not ended")
		return false
	}

	if e.scrubber.Enabled() {
		res := e.scrubber.Scrub(body)
		if n := res.Redacted(); n > 0 {
			e.logger.Debug("redacted secrets from outcome log",
				zap.String("span", h.Name()),
				zap.Int("redactions", n))
		}
		body = res.Text
	}

	var rec otellog.Record
	rec.SetTimestamp(h.EndTime())
	rec.SetObservedTimestamp(e.now())
	rec.SetSeverity(severity)
	rec.SetSeverityText(severity.String())
	rec.SetBody(otellog.StringValue(body))
	rec.AddAttributes(otellog.KeyValueFromAttribute(attrs.Component.String(h.Kind().String())))
	for _, kv := range kvs {
		rec.AddAttributes(otellog.KeyValueFromAttribute(kv))
	}

	e.logs.Emit(h.Context(ctx), rec)
	return true
}

// SeverityFor maps a unit result to a log severity.
func SeverityFor(res unit.Result) otellog.Severity {
	if res.OK() {
		return otellog.SeverityInfo
	}
	return otellog.SeverityError
}
