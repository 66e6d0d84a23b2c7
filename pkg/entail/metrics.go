// Package entail metrics and tracing hooks.
//
// This file implements the MetricsSink consumed by the planner and engine.
// The default sink discards everything; GoMetricsSink forwards counters to
// the process-global go-metrics registry so operators can surface planner
// and scheduler activity alongside their other service metrics.
package entail

import (
	gometrics "github.com/hashicorp/go-metrics"
)

// TraceEventType classifies trace events emitted during planning and
// execution.
type TraceEventType int

const (
	// TraceConstraintPropagated records wildcards bound through arithmetic
	// constraint propagation during planning.
	TraceConstraintPropagated TraceEventType = iota

	// TraceMagicRuleGenerated records emission of a magic propagation
	// rule.
	TraceMagicRuleGenerated

	// TraceFrameParked records a frame suspending on unbound wildcards.
	TraceFrameParked

	// TraceFrameWoken records a parked frame returning to the runnable
	// queue.
	TraceFrameWoken

	// TraceChoiceDeduped records an alternative discarded in favor of a
	// higher-quality derivation of the same bindings.
	TraceChoiceDeduped
)

// TraceEvent is one observation from the planner or engine.
type TraceEvent struct {
	Type        TraceEventType
	PredicateID string
	Detail      string
}

// MetricsSink receives counters and trace events. Implementations must be
// cheap; sinks are called from the scheduler's hot loop.
type MetricsSink interface {
	// RecordTraceEvent observes one trace event.
	RecordTraceEvent(ev TraceEvent)

	// IncrCounter adds val to the named counter.
	IncrCounter(name []string, val float32)
}

// NoOpMetrics discards all observations.
type NoOpMetrics struct{}

// RecordTraceEvent implements MetricsSink.
func (NoOpMetrics) RecordTraceEvent(TraceEvent) {}

// IncrCounter implements MetricsSink.
func (NoOpMetrics) IncrCounter([]string, float32) {}

// GoMetricsSink forwards counters to the go-metrics global registry.
// Trace events are counted by type; their payloads are log material, not
// metric material.
type GoMetricsSink struct{}

// RecordTraceEvent implements MetricsSink.
func (GoMetricsSink) RecordTraceEvent(ev TraceEvent) {
	switch ev.Type {
	case TraceConstraintPropagated:
		gometrics.IncrCounter([]string{"entail", "planner", "constraint_propagated"}, 1)
	case TraceMagicRuleGenerated:
		gometrics.IncrCounter([]string{"entail", "planner", "magic_rule"}, 1)
	case TraceFrameParked:
		gometrics.IncrCounter([]string{"entail", "engine", "frame_parked"}, 1)
	case TraceFrameWoken:
		gometrics.IncrCounter([]string{"entail", "engine", "frame_woken"}, 1)
	case TraceChoiceDeduped:
		gometrics.IncrCounter([]string{"entail", "engine", "choice_deduped"}, 1)
	}
}

// IncrCounter implements MetricsSink.
func (GoMetricsSink) IncrCounter(name []string, val float32) {
	gometrics.IncrCounter(name, val)
}
