package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
	"github.com/fyrsmithlabs/jobtrace/internal/hooks"
	"github.com/fyrsmithlabs/jobtrace/internal/logging"
	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// recorder captures every hook firing in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	byName map[string]hooks.Event
	ends   map[string]unit.Result
}

func newRecorder(hm *hooks.HookManager) *recorder {
	r := &recorder{byName: map[string]hooks.Event{}, ends: map[string]unit.Result{}}
	for _, hook := range []hooks.HookType{
		hooks.HookUnitStarting, hooks.HookUnitFinished,
		hooks.HookSubUnitStarting, hooks.HookSubUnitFinished,
	} {
		hm.RegisterHandler(hook, func(_ context.Context, ev hooks.Event) error {
			r.add(hook, ev)
			return nil
		})
	}
	hm.RegisterHandler(hooks.HookUnitStarting, func(_ context.Context, ev hooks.Event) error {
		name := ev.Unit.Identity().Name
		if c, ok := ev.Unit.(unit.Completable); ok {
			c.OnFinished(func(_ context.Context, res unit.Result, _ time.Time) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.events = append(r.events, "listener "+name)
				r.ends[name] = res
			})
		}
		return nil
	})
	return r
}

func (r *recorder) add(hook hooks.HookType, ev hooks.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := ev.Unit.Identity().Name
	r.events = append(r.events, fmt.Sprintf("%s %s", hook, name))
	if hook == hooks.HookUnitStarting || hook == hooks.HookSubUnitStarting {
		r.byName[name] = ev
	}
}

func (r *recorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestRunner(hm *hooks.HookManager, opts ...Option) *Runner {
	base := []Option{WithSleep(noSleep), WithIDs(sequentialIDs())}
	return NewRunner(hm, append(base, opts...)...)
}

func TestRunner_HookOrder(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)
	p := &Plan{Jobs: []JobSpec{{
		Name: "J",
		Actions: []ActionSpec{{
			Name:     "A",
			DataFlow: &DataFlowSpec{Name: "D", Steps: []StepSpec{{Name: "S"}}},
		}},
	}}}

	newTestRunner(hm).Run(context.Background(), p)

	assert.Equal(t, []string{
		"unit_starting J",
		"sub_unit_starting A",
		"unit_starting D",
		"sub_unit_starting S",
		"sub_unit_finished S",
		"listener D",
		"unit_finished D",
		"sub_unit_finished A",
		"listener J",
		"unit_finished J",
	}, rec.events)
}

func TestRunner_Summary(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)
	p := &Plan{Jobs: []JobSpec{
		{
			Name: "J1",
			Actions: []ActionSpec{
				{Name: "A1", Errors: 1},
				{Name: "A2", DataFlow: &DataFlowSpec{Name: "D", Steps: []StepSpec{
					{Name: "S1"},
					{Name: "S2", Errors: 2},
				}}},
			},
		},
		{Name: "J2"},
	}}

	sum := newTestRunner(hm).Run(context.Background(), p)

	assert.Equal(t, Summary{Jobs: 2, DataFlows: 1, Steps: 2, Actions: 2, Errors: 1}, sum)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// Errors of the data flow stay with the data flow.
	assert.Equal(t, int64(2), rec.ends["D"].Errors)
	assert.Equal(t, int64(1), rec.ends["J1"].Errors)
	assert.Equal(t, "D finished with 2 error(s)", rec.ends["D"].LogText)
	assert.Equal(t, "J2 finished successfully", rec.ends["J2"].LogText)
}

func TestRunner_CustomLogText(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)
	p := &Plan{Jobs: []JobSpec{{Name: "J", LogText: "all rows loaded"}}}

	newTestRunner(hm).Run(context.Background(), p)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "all rows loaded", rec.ends["J"].LogText)
}

func TestRunner_Identities(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)
	p := &Plan{
		Project:     "warehouse",
		Environment: "prod",
		Jobs: []JobSpec{{
			Name: "J", Engine: "local", RunConfiguration: "default", FilePath: "j.kjb", Version: "2",
			Actions: []ActionSpec{{
				Name: "A", Plugin: "run-dataflow",
				DataFlow: &DataFlowSpec{Name: "D", Engine: "local", Steps: []StepSpec{{Name: "S", Plugin: "csv-input"}}},
			}},
		}},
	}

	newTestRunner(hm).Run(context.Background(), p)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	job := rec.byName["J"].Unit
	assert.Equal(t, unit.KindJob, job.Kind())
	assert.Nil(t, job.Parent())
	assert.Equal(t, unit.Identity{
		Name: "J", ExecutionID: "id-1", FilePath: "j.kjb", Version: "2",
		EngineID: "local", RunConfiguration: "default",
		Project: "warehouse", Environment: "prod",
	}, job.Identity())

	action := rec.byName["A"].Unit
	assert.Equal(t, "id-1", action.Identity().ContainerID)
	assert.Equal(t, "run-dataflow", action.Identity().PluginID)
	assert.Same(t, job, unit.OwnerOf(action))

	flow := rec.byName["D"].Unit
	assert.Same(t, action, flow.Parent())
	assert.Equal(t, "id-1", flow.Identity().ContainerID)

	step := rec.byName["S"].Unit
	assert.True(t, unit.IsSubUnit(step))
	assert.Same(t, flow, unit.OwnerOf(step))
	assert.Equal(t, "id-1", step.Identity().ContainerID)
}

func TestRunner_Timestamps(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)

	var (
		mu  sync.Mutex
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	newTestRunner(hm, WithClock(clock)).Run(context.Background(), &Plan{Jobs: []JobSpec{{Name: "J"}}})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC), rec.byName["J"].At)
}

func TestRunner_ParallelSteps(t *testing.T) {
	hm := hooks.NewHookManager(nil)

	var running, peak atomic.Int64
	release := make(chan struct{})
	sleep := func(ctx context.Context, _ time.Duration) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 2 {
			close(release)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		running.Add(-1)
		return ctx.Err()
	}

	p := &Plan{Jobs: []JobSpec{{
		Name: "J",
		Actions: []ActionSpec{{
			Name: "A",
			DataFlow: &DataFlowSpec{Name: "D", Parallelism: 2, Steps: []StepSpec{
				{Name: "S1", Duration: config.Duration(time.Millisecond)},
				{Name: "S2", Duration: config.Duration(time.Millisecond)},
			}},
		}},
	}}}

	r := NewRunner(hm, WithSleep(func(ctx context.Context, d time.Duration) error {
		// Only steps block; the action launching the data flow does not.
		if d == time.Millisecond {
			return sleep(ctx, d)
		}
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum := r.Run(ctx, p)

	assert.False(t, sum.Stopped)
	assert.Equal(t, int64(2), peak.Load())
}

func TestRunner_CancelledMidRun(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	p := &Plan{Jobs: []JobSpec{
		{Name: "J1", Actions: []ActionSpec{{Name: "A1"}, {Name: "A2"}}},
		{Name: "J2"},
	}}
	sum := NewRunner(hm, WithSleep(sleep)).Run(ctx, p)

	assert.True(t, sum.Stopped)
	assert.Equal(t, int64(1), sum.Jobs)
	assert.Equal(t, int64(1), sum.Actions)

	// The started job still reports completion.
	assert.GreaterOrEqual(t, rec.index("listener J1"), 0)
	assert.GreaterOrEqual(t, rec.index("unit_finished J1"), 0)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.ends["J1"].Stopped)
	assert.Equal(t, "J1 was stopped", rec.ends["J1"].LogText)
}

func TestRunner_CancelledBeforeRun(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	rec := newRecorder(hm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := newTestRunner(hm).Run(ctx, &Plan{Jobs: []JobSpec{{Name: "J"}}})

	assert.True(t, sum.Stopped)
	assert.Zero(t, sum.Jobs)
	assert.Empty(t, rec.events)
}

func TestRunner_HookErrorsAreLogged(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	hm.RegisterHandler(hooks.HookUnitStarting, func(context.Context, hooks.Event) error {
		return errors.New("collector unreachable")
	})
	rec := newRecorder(hm)
	log := logging.NewTestLogger()

	sum := newTestRunner(hm, WithLogger(log.Logger)).Run(context.Background(), &Plan{Jobs: []JobSpec{{Name: "J"}}})

	assert.Equal(t, int64(1), sum.Jobs)
	log.AssertLogged(t, zapcore.WarnLevel, "hook failed")
	log.AssertField(t, "hook failed", "hook", "unit_starting")
	// The failing handler stops later handlers for that hook only.
	assert.Equal(t, -1, rec.index("unit_starting J"))
	assert.GreaterOrEqual(t, rec.index("unit_finished J"), 0)
}

func TestRunner_ListenersRunOnce(t *testing.T) {
	var c completion
	var calls atomic.Int64
	c.OnFinished(func(context.Context, unit.Result, time.Time) { calls.Add(1) })

	c.finish(context.Background(), unit.Result{}, time.Now())
	c.finish(context.Background(), unit.Result{}, time.Now())
	c.OnFinished(func(context.Context, unit.Result, time.Time) { calls.Add(1) })

	assert.Equal(t, int64(1), calls.Load())
}

func TestRunner_Reusable(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	r := newTestRunner(hm)
	p := &Plan{Jobs: []JobSpec{{Name: "J", Actions: []ActionSpec{{Name: "A"}}}}}

	require.Equal(t, int64(1), r.Run(context.Background(), p).Actions)
	require.Equal(t, int64(1), r.Run(context.Background(), p).Actions)
}
