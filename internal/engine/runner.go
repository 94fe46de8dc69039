// Package engine is a small in-process job engine. It runs a Plan of jobs,
// data flows, steps and actions and fires the lifecycle hooks the tracing
// bindings listen to, with the ordering a real engine guarantees: a unit's
// start hook returns before any of its children start, and every started
// container reports completion, even when the run is cancelled.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/jobtrace/internal/hooks"
	"github.com/fyrsmithlabs/jobtrace/internal/logging"
	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Summary totals a run.
type Summary struct {
	Jobs      int64
	DataFlows int64
	Steps     int64
	Actions   int64
	// Errors sums the errors of top-level jobs.
	Errors  int64
	Stopped bool
}

// Runner executes plans, one at a time.
type Runner struct {
	runMu sync.Mutex

	hooks  *hooks.HookManager
	logger *logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	newID  func() string

	running                         atomic.Bool
	jobs, dataFlows, steps, actions atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now for hook timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSleep replaces the simulated work delay.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithIDs replaces the execution id generator.
func WithIDs(newID func() string) Option {
	return func(r *Runner) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// NewRunner returns a runner firing hooks on hm.
func NewRunner(hm *hooks.HookManager, opts ...Option) *Runner {
	r := &Runner{
		hooks:  hm,
		logger: logging.NewNop(),
		now:    time.Now,
		sleep:  sleepCtx,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the plan's jobs one after another. Cancelling ctx stops
// the remaining work; units already started still finish and report.
func (r *Runner) Run(ctx context.Context, p *Plan) Summary {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.jobs.Store(0)
	r.dataFlows.Store(0)
	r.steps.Store(0)
	r.actions.Store(0)
	r.running.Store(true)
	defer r.running.Store(false)

	var sum Summary
	for i := range p.Jobs {
		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}
		res := r.runJob(ctx, &p.Jobs[i], nil, "", p)
		sum.Errors += res.Errors
		sum.Stopped = sum.Stopped || res.Stopped
	}

	progress := r.Progress()
	sum.Jobs, sum.DataFlows, sum.Steps, sum.Actions = progress.Jobs, progress.DataFlows, progress.Steps, progress.Actions
	return sum
}

// Progress returns the units started so far by the current run, or by the
// last one when idle. Errors and Stopped are only known at the end of a run
// and are left zero.
func (r *Runner) Progress() Summary {
	return Summary{
		Jobs:      r.jobs.Load(),
		DataFlows: r.dataFlows.Load(),
		Steps:     r.steps.Load(),
		Actions:   r.actions.Load(),
	}
}

// Running reports whether a plan is executing.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) identity(name, engineID, file, version, container string, p *Plan) unit.Identity {
	return unit.Identity{
		Name:        name,
		ExecutionID: r.newID(),
		ContainerID: container,
		FilePath:    file,
		Version:     version,
		EngineID:    engineID,
		Project:     p.Project,
		Environment: p.Environment,
	}
}

func newNode(kind unit.Kind, id unit.Identity, parent unit.Unit) node {
	n := node{kind: kind, id: id, ext: unit.NewExtensionData()}
	if parent != nil {
		n.parent = parent
	}
	return n
}

// runJob runs spec's actions in order. container is the execution id of
// the outermost unit, empty for a top-level job.
func (r *Runner) runJob(ctx context.Context, spec *JobSpec, parent unit.Unit, container string, p *Plan) unit.Result {
	id := r.identity(spec.Name, spec.Engine, spec.FilePath, spec.Version, container, p)
	id.RunConfiguration = spec.RunConfiguration
	j := &Job{node: newNode(unit.KindJob, id, parent)}
	r.jobs.Add(1)

	if container == "" {
		container = id.ExecutionID
	}
	ctx = r.fire(ctx, hooks.HookUnitStarting, hooks.Event{Unit: j, At: r.now()})

	var res unit.Result
	for i := range spec.Actions {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}
		ares := r.runAction(ctx, j, &spec.Actions[i], container, p)
		res.Errors += ares.Errors
		res.Stopped = res.Stopped || ares.Stopped
	}
	res.LogText = spec.LogText
	res.LogText = res.Outcome(spec.Name)

	r.finishContainer(ctx, &j.completion, j, res)
	return res
}

func (r *Runner) runAction(ctx context.Context, j *Job, spec *ActionSpec, container string, p *Plan) unit.Result {
	id := unit.Identity{
		Name:        spec.Name,
		ExecutionID: r.newID(),
		ContainerID: container,
		PluginID:    spec.Plugin,
		Project:     p.Project,
		Environment: p.Environment,
	}
	a := &Action{node: newNode(unit.KindAction, id, j), owner: j}
	r.actions.Add(1)

	r.fire(ctx, hooks.HookSubUnitStarting, hooks.Event{Unit: a, At: r.now()})
	res := r.work(ctx, a, spec, container, p)
	r.fire(ctx, hooks.HookSubUnitFinished, hooks.Event{Unit: a, Result: res, At: r.now()})
	return res
}

// runDataFlow runs spec's steps in parallel.
func (r *Runner) runDataFlow(ctx context.Context, spec *DataFlowSpec, parent unit.Unit, container string, p *Plan) unit.Result {
	id := r.identity(spec.Name, spec.Engine, spec.FilePath, spec.Version, container, p)
	d := &DataFlow{node: newNode(unit.KindDataFlow, id, parent)}
	r.dataFlows.Add(1)

	if container == "" {
		container = id.ExecutionID
	}
	ctx = r.fire(ctx, hooks.HookUnitStarting, hooks.Event{Unit: d, At: r.now()})

	var (
		mu  sync.Mutex
		res unit.Result
	)
	g := new(errgroup.Group)
	if spec.Parallelism > 0 {
		g.SetLimit(spec.Parallelism)
	}
	for i := range spec.Steps {
		s := &spec.Steps[i]
		g.Go(func() error {
			sres := r.runStep(ctx, d, s, container, p)
			mu.Lock()
			res.Errors += sres.Errors
			res.Stopped = res.Stopped || sres.Stopped
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	res.LogText = spec.LogText
	res.LogText = res.Outcome(spec.Name)

	r.finishContainer(ctx, &d.completion, d, res)
	return res
}

func (r *Runner) runStep(ctx context.Context, d *DataFlow, spec *StepSpec, container string, p *Plan) unit.Result {
	id := unit.Identity{
		Name:        spec.Name,
		ExecutionID: r.newID(),
		ContainerID: container,
		PluginID:    spec.Plugin,
		Project:     p.Project,
		Environment: p.Environment,
	}
	s := &Step{node: newNode(unit.KindStep, id, d), owner: d}
	r.steps.Add(1)

	r.fire(ctx, hooks.HookSubUnitStarting, hooks.Event{Unit: s, At: r.now()})
	res := r.work(ctx, s, spec, container, p)
	r.fire(ctx, hooks.HookSubUnitFinished, hooks.Event{Unit: s, Result: res, At: r.now()})
	return res
}

// work simulates a step or action, then runs the unit it launches. Errors
// of a launched unit stay with that unit.
func (r *Runner) work(ctx context.Context, parent unit.Unit, w *Work, container string, p *Plan) unit.Result {
	res := unit.Result{Errors: w.Errors}
	if err := r.sleep(ctx, w.Duration.Duration()); err != nil {
		res.Stopped = true
		return res
	}

	switch {
	case w.Job != nil:
		r.runJob(ctx, w.Job, parent, container, p)
	case w.DataFlow != nil:
		r.runDataFlow(ctx, w.DataFlow, parent, container, p)
	}
	return res
}

// finishContainer notifies completion listeners, then fires the finished
// hook. It runs even when ctx is cancelled, with a context that is not.
func (r *Runner) finishContainer(ctx context.Context, c *completion, u unit.Unit, res unit.Result) {
	ctx = context.WithoutCancel(ctx)
	end := r.now()
	c.finish(ctx, res, end)
	r.fire(ctx, hooks.HookUnitFinished, hooks.Event{Unit: u, Result: res, At: end})
}

// fire runs the hook handlers. Hook failures are logged and never change
// how the unit runs. It returns ctx annotated with the unit for logging.
func (r *Runner) fire(ctx context.Context, hook hooks.HookType, ev hooks.Event) context.Context {
	id := ev.Unit.Identity()
	ctx = logging.WithExecution(ctx, &logging.Execution{
		Kind: ev.Unit.Kind().String(),
		Name: id.Name,
		ID:   id.ExecutionID,
	})
	r.logger.Trace(ctx, "firing hook", zap.String("hook", string(hook)))
	if err := r.hooks.Execute(ctx, hook, ev); err != nil {
		r.logger.Warn(ctx, "hook failed", zap.String("hook", string(hook)), zap.Error(err))
	}
	return ctx
}
