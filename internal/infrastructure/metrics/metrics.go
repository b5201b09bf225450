// Package metrics exposes Prometheus instrumentation for the matching service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every service metric.
const DefaultNamespace = "afterschool_matching"

// Pair failure stages.
const (
	StageStudent = "student_fetch"
	StageTeacher = "teacher_fetch"
	StageContext = "context"
)

// Profile fetch results.
const (
	FetchHit      = "hit"
	FetchMiss     = "miss"
	FetchError    = "error"
	FetchRejected = "rejected"
	FetchClamped  = "clamped"
)

// Metrics holds the service collectors.
type Metrics struct {
	pairsScored         prometheus.Counter
	pairFailures        *prometheus.CounterVec
	pairScores          prometheus.Histogram
	profileFetches      *prometheus.CounterVec
	proposalsCreated    prometheus.Counter
	studentsExcluded    prometheus.Counter
	proposalTransitions *prometheus.CounterVec
	batchDuration       *prometheus.HistogramVec
	breakerState        *prometheus.GaugeVec
	jobRuns             *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
}

// New creates and registers the collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer; an empty namespace uses the service name.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		pairsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairs",
			Name:      "scored_total",
			Help:      "Teacher-student pairs scored.",
		}),
		pairFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairs",
			Name:      "failures_total",
			Help:      "Pairs excluded because a profile could not be fetched, by stage.",
		}, []string{"stage"}),
		pairScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pairs",
			Name:      "score",
			Help:      "Distribution of overall compatibility scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		}),
		profileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profiles",
			Name:      "fetches_total",
			Help:      "Profile fetches by owner kind and result.",
		}, []string{"kind", "result"}),
		proposalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "created_total",
			Help:      "Assignment proposals created.",
		}),
		studentsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "students_excluded_total",
			Help:      "Students left out of proposals because every pair failed.",
		}),
		proposalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "transitions_total",
			Help:      "Proposal status transitions by target status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
	}

	reg.MustRegister(
		m.pairsScored,
		m.pairFailures,
		m.pairScores,
		m.profileFetches,
		m.proposalsCreated,
		m.studentsExcluded,
		m.proposalTransitions,
		m.batchDuration,
		m.breakerState,
		m.jobRuns,
		m.jobDuration,
	)
	return m
}

// PairScored records one successful pair computation.
func (m *Metrics) PairScored(overall float64) {
	if m == nil {
		return
	}
	m.pairsScored.Inc()
	m.pairScores.Observe(overall)
}

// PairFailed records one excluded pair.
func (m *Metrics) PairFailed(stage string) {
	if m == nil {
		return
	}
	m.pairFailures.WithLabelValues(stage).Inc()
}

// ProfileFetch records a profile lookup outcome.
func (m *Metrics) ProfileFetch(kind, result string) {
	if m == nil {
		return
	}
	m.profileFetches.WithLabelValues(kind, result).Inc()
}

// ProposalCreated records a new proposal and its excluded students.
func (m *Metrics) ProposalCreated(excluded int) {
	if m == nil {
		return
	}
	m.proposalsCreated.Inc()
	m.studentsExcluded.Add(float64(excluded))
}

// ProposalTransition records a move to a terminal status.
func (m *Metrics) ProposalTransition(status string) {
	if m == nil {
		return
	}
	m.proposalTransitions.WithLabelValues(status).Inc()
}

// ObserveBatch records how long a batch operation took.
func (m *Metrics) ObserveBatch(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// BreakerState records the current state of a named breaker.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// JobRun records one scheduled job execution.
func (m *Metrics) JobRun(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
