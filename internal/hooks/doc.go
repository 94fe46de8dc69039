// Package hooks connects the tracing core to a job engine's lifecycle hooks.
//
// The engine fires unit_starting and unit_finished for jobs and data
// flows, and sub_unit_starting and sub_unit_finished for steps and
// actions. Bindings registers handlers for all four that begin and end
// spans, count completions and log each job's outcome. Handlers never
// return errors, so tracing cannot stop a running job.
package hooks
