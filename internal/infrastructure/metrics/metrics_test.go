package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.PairScored(72)
	m.PairScored(41)
	m.PairFailed(StageTeacher)
	m.ProfileFetch("teacher", FetchHit)
	m.ProposalCreated(3)
	m.ProposalTransition("APPLIED")
	m.ObserveBatch("propose", 120*time.Millisecond)
	m.BreakerState("profile-store", 1)
	m.JobRun("propose_team_assignments", time.Second, nil)
	m.JobRun("propose_team_assignments", time.Second, assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pairsScored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pairFailures.WithLabelValues(StageTeacher)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.profileFetches.WithLabelValues("teacher", FetchHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proposalsCreated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.studentsExcluded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.proposalTransitions.WithLabelValues("APPLIED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("profile-store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("propose_team_assignments", "failure")))

	n, err := testutil.GatherAndCount(reg, "test_batch_duration_seconds", "test_pairs_score")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PairScored(50)
		m.PairFailed(StageStudent)
		m.ProfileFetch("student", FetchMiss)
		m.ProposalCreated(1)
		m.ProposalTransition("CANCELLED")
		m.ObserveBatch("analyze", time.Second)
		m.BreakerState("x", 0)
		m.JobRun("x", time.Second, nil)
	})
}
