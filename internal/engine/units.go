package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// node holds what every unit kind shares.
type node struct {
	kind   unit.Kind
	id     unit.Identity
	parent unit.Unit
	ext    *unit.ExtensionData
}

func (n *node) Kind() unit.Kind                    { return n.kind }
func (n *node) Parent() unit.Unit                  { return n.parent }
func (n *node) Identity() unit.Identity            { return n.id }
func (n *node) ExtensionData() *unit.ExtensionData { return n.ext }

// completion fans a finished result out to registered listeners, once.
type completion struct {
	mu        sync.Mutex
	listeners []unit.Listener
	done      bool
}

// OnFinished registers l. Listeners added after the unit finished are
// never called.
func (c *completion) OnFinished(l unit.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.listeners = append(c.listeners, l)
}

func (c *completion) finish(ctx context.Context, res unit.Result, end time.Time) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for _, l := range listeners {
		l(ctx, res, end)
	}
}

// Job is an ordered list of actions.
type Job struct {
	node
	completion
}

// DataFlow runs its steps in parallel.
type DataFlow struct {
	node
	completion
}

// Step is one transform of a data flow.
type Step struct {
	node
	owner *DataFlow
}

// Owner returns the step's data flow.
func (s *Step) Owner() unit.Unit { return s.owner }

// Action is one entry of a job.
type Action struct {
	node
	owner *Job
}

// Owner returns the action's job.
func (a *Action) Owner() unit.Unit { return a.owner }

var (
	_ unit.Completable = (*Job)(nil)
	_ unit.Completable = (*DataFlow)(nil)
	_ unit.Owned       = (*Step)(nil)
	_ unit.Owned       = (*Action)(nil)
)
