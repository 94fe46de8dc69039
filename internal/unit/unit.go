// Package unit describes the execution units a job engine exposes to the
// tracing core: jobs, data flows, steps and actions.
//
// The engine owns the units. The tracing core only reads their identity and
// parent links, and keeps its own state in each unit's ExtensionData.
package unit

import (
	"context"
	"fmt"
	"time"
)

// Kind is the variant of an execution unit.
type Kind int

const (
	// KindUnknown is the zero value and never resolves a parent span.
	KindUnknown Kind = iota
	// KindJob is an orchestrated unit composed of ordered actions.
	KindJob
	// KindDataFlow is a container of concurrently running steps.
	KindDataFlow
	// KindStep is a leaf unit inside a data flow.
	KindStep
	// KindAction is a leaf unit inside a job.
	KindAction
)

// String returns the component name used in span attributes.
func (k Kind) String() string {
	switch k {
	case KindJob:
		return "Job"
	case KindDataFlow:
		return "DataFlow"
	case KindStep:
		return "Step"
	case KindAction:
		return "Action"
	default:
		return "Unknown"
	}
}

// IsContainer reports whether units of this kind hold other units.
func (k Kind) IsContainer() bool {
	return k == KindJob || k == KindDataFlow
}

// Identity carries the identifying fields of a unit. Any field may be empty.
type Identity struct {
	Name             string
	ExecutionID      string
	ContainerID      string
	FilePath         string
	Version          string
	EngineID         string
	PluginID         string
	RunConfiguration string
	Project          string
	Environment      string
}

// Unit is an execution unit seen by the tracing core.
type Unit interface {
	Kind() Kind
	// Parent returns the logical parent, which may be nil or a unit of a
	// different kind (a data flow launched from a job action, a job launched
	// from a step).
	Parent() Unit
	Identity() Identity
	ExtensionData() *ExtensionData
}

// Owned is implemented by leaf units that belong to a container: a step's
// owner is its data flow and an action's owner is its job.
type Owned interface {
	Owner() Unit
}

// Listener is called once when a unit finishes. end is the time the work
// actually finished, which may be well before the call.
type Listener func(ctx context.Context, res Result, end time.Time)

// Completable is implemented by units that accept completion listeners.
type Completable interface {
	OnFinished(l Listener)
}

// Result is the outcome reported by the engine for a finished unit.
type Result struct {
	Errors  int64
	LogText string
	Stopped bool
}

// OK reports whether the unit finished without errors.
func (r Result) OK() bool {
	return r.Errors == 0
}

// Outcome returns LogText, or a one-line summary of r for a unit called
// name when the engine reported no text.
func (r Result) Outcome(name string) string {
	if r.LogText != "" {
		return r.LogText
	}
	if name != "" {
		name += " "
	}
	switch {
	case r.Stopped:
		return name + "was stopped"
	case r.OK():
		return name + "finished successfully"
	default:
		return fmt.Sprintf("%sfinished with %d error(s)", name, r.Errors)
	}
}

// IsSubUnit reports whether u runs nested inside another unit.
func IsSubUnit(u Unit) bool {
	return u != nil && u.Parent() != nil
}

// OwnerOf returns u's owning container, or nil when u has none.
func OwnerOf(u Unit) Unit {
	if o, ok := u.(Owned); ok {
		return o.Owner()
	}
	return nil
}
