package tracing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// Violation reasons recorded by Stats.
const (
	ReasonAlreadyStarted = "already_started"
	ReasonNotStarted     = "not_started"
	ReasonExcluded       = "excluded"
	ReasonNoStartTime    = "no_start_time"
)

// Stats counts span lifecycle events of this process. It observes the
// tracing core itself, independent of whether spans are exported.
//
// Metrics:
//   - jobtrace_spans_started_total{kind}
//   - jobtrace_spans_ended_total{kind,status}
//   - jobtrace_spans_in_flight
//   - jobtrace_lifecycle_violations_total{reason}
type Stats struct {
	SpansStarted *prometheus.CounterVec
	SpansEnded   *prometheus.CounterVec
	InFlight     prometheus.Gauge
	Violations   *prometheus.CounterVec
}

// NewStats creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests use to avoid global state.
func NewStats(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)
	return &Stats{
		SpansStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrace_spans_started_total",
				Help: "Total number of unit spans started",
			},
			[]string{"kind"},
		),
		SpansEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrace_spans_ended_total",
				Help: "Total number of unit spans ended",
			},
			[]string{"kind", "status"}, // "ok" or "error"
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobtrace_spans_in_flight",
				Help: "Number of unit spans begun and not yet ended",
			},
		),
		Violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobtrace_lifecycle_violations_total",
				Help: "Total number of begin/end calls that broke the span lifecycle",
			},
			[]string{"reason"},
		),
	}
}

func (s *Stats) started(kind unit.Kind) {
	if s == nil {
		return
	}
	s.SpansStarted.WithLabelValues(kind.String()).Inc()
	s.InFlight.Inc()
}

func (s *Stats) ended(kind unit.Kind, ok bool) {
	if s == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	s.SpansEnded.WithLabelValues(kind.String(), status).Inc()
	s.InFlight.Dec()
}

// RecordViolation counts a lifecycle violation. Safe on a nil Stats.
func (s *Stats) RecordViolation(reason string) {
	if s == nil {
		return
	}
	s.Violations.WithLabelValues(reason).Inc()
}
