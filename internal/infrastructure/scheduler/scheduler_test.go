package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

type panicJob struct{}

func (panicJob) Name() string              { return "panics" }
func (panicJob) Description() string       { return "" }
func (panicJob) Run(context.Context) error { panic("boom") }

func fastConfig() Config {
	return Config{TickInterval: 5 * time.Millisecond, MaxConcurrentJobs: 2}
}

func TestScheduler_RegisterErrors(t *testing.T) {
	s := New(fastConfig(), nil, nil)

	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, Every(time.Second)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, Every(time.Second)), ErrJobAlreadyExists)

	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)
	_, err := s.GetJobInfo("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(fastConfig(), metrics.New(reg, "test"), nil)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.RunCount, int64(2))
	assert.Zero(t, info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.True(t, info.LastResult.Success())
}

func TestScheduler_DoesNotOverlapRuns(t *testing.T) {
	s := New(fastConfig(), nil, nil)
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := New(fastConfig(), nil, nil)
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := New(fastConfig(), nil, nil)
	job := &countingJob{name: "stuck", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	hist := s.GetHistory(0)
	require.Len(t, hist, 1)
	assert.ErrorIs(t, hist[0].Err, context.Canceled)
}

func TestScheduler_RunNow(t *testing.T) {
	errJob := errors.New("job failed")
	s := New(Config{JobTimeout: time.Second}, nil, nil)
	require.NoError(t, s.Register(&countingJob{name: "bad", err: errJob}, Every(time.Hour)))
	require.NoError(t, s.Register(panicJob{}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, errJob)
	assert.True(t, res.Manual)
	assert.False(t, res.Success())

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	info, err := s.GetJobInfo("bad")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.FailCount)
	assert.Len(t, s.GetHistory(10), 2)
	assert.Len(t, s.GetHistory(1), 1)
	assert.Len(t, s.ListJobs(), 2)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	s := New(Config{MaxHistorySize: 3}, nil, nil)
	require.NoError(t, s.Register(&countingJob{name: "j"}, Every(time.Hour)))

	for range 5 {
		_, _ = s.RunNow(context.Background(), "j")
	}
	assert.Len(t, s.GetHistory(0), 3)
}

func TestIntervalSchedule(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 17, 0, 0, time.UTC)

	assert.Equal(t, at.Add(time.Hour), Every(time.Hour).Next(at))
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), EveryAligned(time.Hour).Next(at))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EveryAligned(time.Hour).Next(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)))
	assert.True(t, Every(0).Next(at).IsZero())
	assert.Equal(t, "@every 1h0m0s", Every(time.Hour).String())
}
