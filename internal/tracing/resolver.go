package tracing

import (
	"context"

	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Source tells where a TraceContext's parent span was found.
type Source int

const (
	// SourceRoot means no parent span was found; the new span starts a trace.
	SourceRoot Source = iota
	// SourceDirect means the parent unit carried the span itself.
	SourceDirect
	// SourceOwner means the span came from the parent's owning container.
	SourceOwner
)

func (s Source) String() string {
	switch s {
	case SourceDirect:
		return "direct"
	case SourceOwner:
		return "owner"
	default:
		return "root"
	}
}

// TraceContext is the resolved parent for a new span. The zero value is a
// root context.
type TraceContext struct {
	parent *Handle
	source Source
}

// Parent returns the parent handle, or nil for a root context.
func (tc TraceContext) Parent() *Handle { return tc.parent }

// Source returns how the parent was found.
func (tc TraceContext) Source() Source { return tc.source }

// IsRoot reports whether the new span starts a trace.
func (tc TraceContext) IsRoot() bool { return tc.parent == nil }

// Context returns base with the parent span installed. A root context
// returns base unchanged; Begin starts such spans as new roots.
func (tc TraceContext) Context(base context.Context) context.Context {
	if tc.parent == nil {
		return base
	}
	return tc.parent.Context(base)
}

// ownerRule maps a parent unit that carries no span to the container whose
// span stands in for it.
type ownerRule func(parent unit.Unit) unit.Unit

// Resolver finds the span a unit's span is parented under. It only reads
// extension data.
type Resolver struct {
	rules map[unit.Kind]ownerRule
}

// NewResolver returns a resolver with the fallback table:
//
//	parent kind | parent has no span, use
//	Step        | the step's owning data flow
//	Action      | the action's owning job
//
// Jobs and data flows have no fallback: if they carry no span the new span
// is a root.
func NewResolver() *Resolver {
	return &Resolver{
		rules: map[unit.Kind]ownerRule{
			unit.KindStep:   ownerOfKind(unit.KindDataFlow),
			unit.KindAction: ownerOfKind(unit.KindJob),
		},
	}
}

func ownerOfKind(want unit.Kind) ownerRule {
	return func(parent unit.Unit) unit.Unit {
		owner := unit.OwnerOf(parent)
		if owner == nil || owner.Kind() != want {
			return nil
		}
		return owner
	}
}

// Resolve returns the trace context for u. A nil unit, a unit without a
// parent, or a parent chain with no published span resolves to root.
func (r *Resolver) Resolve(u unit.Unit) TraceContext {
	if u == nil {
		return TraceContext{}
	}
	p := u.Parent()
	if p == nil {
		return TraceContext{}
	}

	if h := activeHandle(p); h != nil {
		return TraceContext{parent: h, source: SourceDirect}
	}

	rule, ok := r.rules[p.Kind()]
	if !ok {
		return TraceContext{}
	}
	if owner := rule(p); owner != nil {
		if h := activeHandle(owner); h != nil {
			return TraceContext{parent: h, source: SourceOwner}
		}
	}
	return TraceContext{}
}

// activeHandle returns the open span handle stored on u, if any.
func activeHandle(u unit.Unit) *Handle {
	v, ok := u.ExtensionData().Load(unit.KeySpan)
	if !ok {
		return nil
	}
	h, ok := v.(*Handle)
	if !ok || h == nil || h.Ended() {
		return nil
	}
	return h
}
