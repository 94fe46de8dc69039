package hooks

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jobtrace/internal/attrs"
	"github.com/fyrsmithlabs/jobtrace/internal/logging"
	"github.com/fyrsmithlabs/jobtrace/internal/tracing"
	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Bindings adapts the span manager and emitter to engine hooks.
type Bindings struct {
	manager *tracing.Manager
	emitter *tracing.Emitter
	config  *Config
	logger  *logging.Logger
}

// NewBindings returns bindings using m and e. cfg and logger may be nil.
func NewBindings(m *tracing.Manager, e *tracing.Emitter, cfg *Config, logger *logging.Logger) *Bindings {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bindings{
		manager: m,
		emitter: e,
		config:  cfg,
		logger:  logger.Named("hooks"),
	}
}

// Register installs the handlers on hm.
func (b *Bindings) Register(hm *HookManager) {
	hm.RegisterHandler(HookUnitStarting, b.onUnitStarting)
	hm.RegisterHandler(HookUnitFinished, b.onUnitFinished)
	hm.RegisterHandler(HookSubUnitStarting, b.onSubUnitStarting)
	hm.RegisterHandler(HookSubUnitFinished, b.onSubUnitFinished)
}

// Attributes returns the project and environment attributes added to u's
// span when u does not carry its own.
func (b *Bindings) Attributes(u unit.Unit) []attribute.KeyValue {
	id := u.Identity()
	builder := attrs.NewBuilder(2)
	if id.Project == "" {
		builder.Str(attrs.ServiceProject, b.config.Project)
	}
	if id.Environment == "" {
		builder.Str(attrs.ServiceEnvironment, b.config.Environment)
	}
	return builder.Build()
}

func (b *Bindings) onUnitStarting(ctx context.Context, ev Event) error {
	u := ev.Unit
	if u == nil || !u.Kind().IsContainer() {
		return nil
	}
	ctx = withExecution(ctx, u)

	if ext := u.ExtensionData(); ext != nil && b.config.IsLoggingJob(u.Identity().Name) {
		ext.Store(unit.KeyLoggingInternal, true)
	}

	// Some engines fire the start hook for units that never actually run
	// and leave the start date unset.
	if ev.At.IsZero() {
		b.manager.Stats().RecordViolation(tracing.ReasonNoStartTime)
		b.logger.Debug(ctx, "skipping unit without start time")
		return nil
	}

	if _, err := b.manager.Begin(ctx, u, tracing.SpanOptions{
		Start:      ev.At,
		Attributes: b.Attributes(u),
	}); err != nil {
		b.logLifecycle(ctx, "begin", err)
		return nil
	}

	if c, ok := u.(unit.Completable); ok {
		c.OnFinished(func(ctx context.Context, res unit.Result, end time.Time) {
			b.finish(ctx, u, res, end)
		})
	}
	return nil
}

// onUnitFinished covers engines that report completion through the hook
// instead of a listener. Completable units are finished by their listener.
func (b *Bindings) onUnitFinished(ctx context.Context, ev Event) error {
	u := ev.Unit
	if u == nil || !u.Kind().IsContainer() {
		return nil
	}
	if _, ok := u.(unit.Completable); ok {
		return nil
	}
	b.finish(ctx, u, ev.Result, ev.At)
	return nil
}

func (b *Bindings) onSubUnitStarting(ctx context.Context, ev Event) error {
	u := ev.Unit
	if u == nil || u.Kind().IsContainer() || u.Kind() == unit.KindUnknown {
		return nil
	}
	ctx = withExecution(ctx, u)

	if _, err := b.manager.Begin(ctx, u, tracing.SpanOptions{
		Start:      ev.At,
		Attributes: b.Attributes(u),
	}); err != nil {
		b.logLifecycle(ctx, "begin", err)
	}
	return nil
}

func (b *Bindings) onSubUnitFinished(ctx context.Context, ev Event) error {
	u := ev.Unit
	if u == nil || u.Kind().IsContainer() || u.Kind() == unit.KindUnknown {
		return nil
	}
	b.finish(ctx, u, ev.Result, ev.At)
	return nil
}

// finish ends u's span, counts the completion and, for jobs and data flows,
// logs the outcome, summarizing the result when the engine sent no text. Units whose span was never started are not counted.
func (b *Bindings) finish(ctx context.Context, u unit.Unit, res unit.Result, end time.Time) {
	ctx = withExecution(ctx, u)

	h, err := b.manager.End(ctx, u, tracing.StatusFromResult(res), end,
		attrs.ErrorCount.Int64(res.Errors),
		attrs.Stopped.Bool(res.Stopped),
	)
	if err != nil {
		b.logLifecycle(ctx, "end", err)
		return
	}

	b.emitter.RecordCompletion(ctx, tracing.CounterName(u.Kind()), counterAttributes(u)...)

	if u.Kind().IsContainer() {
		b.emitter.LogOutcome(ctx, h, tracing.SeverityFor(res), res.Outcome(u.Identity().Name),
			attrs.ErrorCount.Int64(res.Errors))
	}

	b.logger.Debug(ctx, "unit finished",
		zap.Int64("errors", res.Errors),
		zap.Bool("stopped", res.Stopped))
}

func (b *Bindings) logLifecycle(ctx context.Context, op string, err error) {
	if errors.Is(err, tracing.ErrExcluded) {
		b.logger.Trace(ctx, "unit excluded from tracing")
		return
	}
	// The manager already counted and logged the violation.
	b.logger.Trace(ctx, "span "+op+" skipped", zap.Error(err))
}

// counterAttributes tags jobs and data flows with their engine and steps and
// actions with their plugin.
func counterAttributes(u unit.Unit) []attribute.KeyValue {
	id := u.Identity()
	b := attrs.NewBuilder(1)
	switch u.Kind() {
	case unit.KindJob:
		b.Str(attrs.JobEngine, id.EngineID)
	case unit.KindDataFlow:
		b.Str(attrs.DataFlowEngine, id.EngineID)
	case unit.KindStep:
		b.Str(attrs.StepPluginID, id.PluginID)
	case unit.KindAction:
		b.Str(attrs.ActionPluginID, id.PluginID)
	}
	return b.Build()
}

func withExecution(ctx context.Context, u unit.Unit) context.Context {
	id := u.Identity()
	return logging.WithExecution(ctx, &logging.Execution{
		Kind: u.Kind().String(),
		Name: id.Name,
		ID:   id.ExecutionID,
	})
}
