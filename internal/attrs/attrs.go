// Package attrs defines the attribute keys used to tag spans, counters and
// log records emitted for job executions.
//
// Keep keys here rather than inline at call sites so that spans, metrics and
// logs for the same unit always agree on naming.
package attrs

import (
	"go.opentelemetry.io/otel/attribute"
)

// Service-level attributes.
const (
	ServiceProject     = attribute.Key("service.project")
	ServiceEnvironment = attribute.Key("service.environment")
)

// Component is the unit kind that produced a span or log record
// ("Job", "DataFlow", "Step", "Action").
const Component = attribute.Key("jobtrace.component")

// Job attributes.
const (
	JobEngine           = attribute.Key("job.engine")
	JobRunConfiguration = attribute.Key("job.run.configuration")
	JobExecutionID      = attribute.Key("job.execution.id")
	JobContainerID      = attribute.Key("job.container.id")
	JobFilePath         = attribute.Key("job.file.path")
	JobVersion          = attribute.Key("job.version")
)

// ActionPluginID identifies the plugin implementing a job action.
const ActionPluginID = attribute.Key("action.plugin.id")

// DataFlow attributes.
const (
	DataFlowEngine      = attribute.Key("dataflow.engine")
	DataFlowExecutionID = attribute.Key("dataflow.execution.id")
	DataFlowContainerID = attribute.Key("dataflow.container.id")
	DataFlowFilePath    = attribute.Key("dataflow.file.path")
	DataFlowVersion     = attribute.Key("dataflow.version")
)

// StepPluginID identifies the plugin implementing a data flow step.
const StepPluginID = attribute.Key("step.plugin.id")

// Outcome attributes.
const (
	ErrorCount = attribute.Key("jobtrace.errors")
	Stopped    = attribute.Key("jobtrace.stopped")
)

// String returns k=v, or false when v is empty. Missing identity fields
// are dropped rather than exported as empty strings.
func String(k attribute.Key, v string) (attribute.KeyValue, bool) {
	if v == "" {
		return attribute.KeyValue{}, false
	}
	return k.String(v), true
}

// Builder accumulates attributes, skipping empty values.
type Builder struct {
	kvs []attribute.KeyValue
}

// NewBuilder returns a builder with room for n attributes.
func NewBuilder(n int) *Builder {
	return &Builder{kvs: make([]attribute.KeyValue, 0, n)}
}

// Str adds k=v when v is non-empty.
func (b *Builder) Str(k attribute.Key, v string) *Builder {
	if kv, ok := String(k, v); ok {
		b.kvs = append(b.kvs, kv)
	}
	return b
}

// Add appends attributes unconditionally.
func (b *Builder) Add(kvs ...attribute.KeyValue) *Builder {
	b.kvs = append(b.kvs, kvs...)
	return b
}

// Build returns the accumulated attributes.
func (b *Builder) Build() []attribute.KeyValue {
	return b.kvs
}
