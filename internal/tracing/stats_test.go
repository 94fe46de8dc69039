package tracing

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

func TestStats_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStats(reg)

	s.started(unit.KindStep)
	s.ended(unit.KindStep, false)
	s.RecordViolation(ReasonNoStartTime)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.SpansEnded.WithLabelValues("Step", "error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(s.InFlight))
}

func TestStats_NilSafe(t *testing.T) {
	var s *Stats
	assert.NotPanics(t, func() {
		s.started(unit.KindJob)
		s.ended(unit.KindJob, true)
		s.RecordViolation(ReasonExcluded)
	})
}

func TestStats_UnregisteredWithNilRegisterer(t *testing.T) {
	a := NewStats(nil)
	b := NewStats(nil)
	a.started(unit.KindJob)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.InFlight))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.InFlight))
}
