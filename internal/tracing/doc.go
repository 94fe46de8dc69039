// Package tracing turns the lifecycle of nested job units into a
// correctly nested trace.
//
// A Resolver finds the span a new unit should be parented under by looking
// at its logical parent, falling back from a step to its data flow and
// from an action to its job. A Manager starts the unit's span, parks the
// Handle in the unit's extension data, and closes it exactly once when the
// engine reports the unit finished, at the engine's own end timestamp. An
// Emitter adds the completion counters and the outcome log record, bound
// to the closed span.
//
// Nothing here returns errors the engine has to handle: lifecycle
// violations come back as sentinel errors for the caller to log, and
// export failures stay inside the SDK.
package tracing
