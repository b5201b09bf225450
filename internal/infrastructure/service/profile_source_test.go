package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/afterschool-matching/pkg/circuitbreaker"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
	"github.com/alem-hub/afterschool-matching/pkg/retry"
)

type fakeUpstream struct {
	mu       sync.Mutex
	students map[shared.StudentID]*profile.Student
	teachers map[shared.TeacherID]*profile.Teacher
	failures map[string]int // remaining failures per owner id
	calls    map[string]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		students: map[shared.StudentID]*profile.Student{},
		teachers: map[shared.TeacherID]*profile.Teacher{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

var errUpstreamDown = errors.New("connection refused")

func (f *fakeUpstream) hit(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if n := f.failures[id]; n != 0 {
		if n > 0 {
			f.failures[id] = n - 1
		}
		return errUpstreamDown
	}
	return nil
}

func (f *fakeUpstream) StudentProfile(_ context.Context, id shared.StudentID) (*profile.Student, error) {
	if err := f.hit(id.String()); err != nil {
		return nil, err
	}
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return &profile.Student{ID: id}, nil
}

func (f *fakeUpstream) TeacherProfile(_ context.Context, id shared.TeacherID) (*profile.Teacher, error) {
	if err := f.hit(id.String()); err != nil {
		return nil, err
	}
	if t, ok := f.teachers[id]; ok {
		return t, nil
	}
	return nil, shared.WrapError("profile", "TeacherProfile", shared.ErrNotFound, "no teacher", shared.ErrTeacherNotFound)
}

func (f *fakeUpstream) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func fastRetrier() *retry.Retrier {
	return retry.ProfileStoreRetrier(3, time.Millisecond, 2*time.Millisecond, IsRetryableFetch)
}

func newTestProfileCache(t *testing.T) *redis.ProfileCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewProfileCache(redis.NewCacheFromClient(client), time.Minute)
}

func validMBTI() *profile.MBTIProfile {
	return &profile.MBTIProfile{
		Type:        "ENTJ",
		Percentages: profile.MBTIPercentages{E: 70, I: 30, S: 40, N: 60, T: 65, F: 35, J: 55, P: 45},
	}
}

func TestResilientSource_ReadThroughCache(t *testing.T) {
	up := newFakeUpstream()
	up.teachers["t-1"] = &profile.Teacher{
		ID:          "t-1",
		CurrentLoad: 4,
		Personality: &profile.PersonalityProfile{MBTI: validMBTI(), Version: 3},
	}

	src := NewResilientSource(up, WithCache(newTestProfileCache(t)), WithRetrier(fastRetrier()))
	ctx := context.Background()

	first, err := src.TeacherProfile(ctx, "t-1")
	require.NoError(t, err)
	second, err := src.TeacherProfile(ctx, "t-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 4, second.CurrentLoad)
	assert.Equal(t, 1, up.callCount("t-1"))
}

func TestResilientSource_RetriesTransientFailures(t *testing.T) {
	up := newFakeUpstream()
	up.failures["s-1"] = 2
	src := NewResilientSource(up, WithRetrier(fastRetrier()))

	st, err := src.StudentProfile(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, shared.StudentID("s-1"), st.ID)
	assert.True(t, st.Personality.IsEmpty())
	assert.Equal(t, 3, up.callCount("s-1"))
}

func TestResilientSource_UnavailableAfterRetries(t *testing.T) {
	up := newFakeUpstream()
	up.failures["s-1"] = -1
	src := NewResilientSource(up, WithRetrier(fastRetrier()))

	_, err := src.StudentProfile(context.Background(), "s-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrProfileUnavailable)
	assert.ErrorIs(t, err, errUpstreamDown)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, 3, up.callCount("s-1"))
}

func TestResilientSource_UnknownTeacherIsNotRetried(t *testing.T) {
	up := newFakeUpstream()
	src := NewResilientSource(up, WithRetrier(fastRetrier()))

	_, err := src.TeacherProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTeacherNotFound)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 1, up.callCount("ghost"))
	assert.Equal(t, circuitbreaker.StateClosed, src.Breaker().State())
}

func TestResilientSource_BreakerShortCircuits(t *testing.T) {
	up := newFakeUpstream()
	up.failures["s-1"] = -1
	breaker := circuitbreaker.ProfileStoreBreaker(2, time.Hour, 1, shared.IsNotFound, nil)
	src := NewResilientSource(up,
		WithBreaker(breaker),
		WithRetrier(retry.ProfileStoreRetrier(1, time.Millisecond, time.Millisecond, IsRetryableFetch)),
	)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := src.StudentProfile(ctx, "s-1")
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err := src.StudentProfile(ctx, "s-1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, err, shared.ErrProfileUnavailable)
	assert.Equal(t, 2, up.callCount("s-1"))
}

func TestResilientSource_LenientClampsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	up := newFakeUpstream()
	up.teachers["t-1"] = &profile.Teacher{
		ID:          "t-1",
		CurrentLoad: -3,
		Personality: &profile.PersonalityProfile{
			FiveElements: &profile.FiveElements{Wood: -1, Fire: 2},
		},
	}

	src := NewResilientSource(up, WithRetrier(fastRetrier()), WithSourceLogger(logger.FromZap(zap.New(core))))
	got, err := src.TeacherProfile(context.Background(), "t-1")
	require.NoError(t, err)

	assert.Equal(t, 0, got.CurrentLoad)
	assert.Equal(t, 0.0, got.Personality.FiveElements.Wood)
	assert.Equal(t, -1.0, up.teachers["t-1"].Personality.FiveElements.Wood, "upstream snapshot must not be mutated")
	assert.Equal(t, 1, logs.FilterMessage("teacher load clamped").Len())
	assert.Equal(t, 1, logs.FilterMessage("profile clamped at ingestion").Len())
}

func TestResilientSource_StrictRejects(t *testing.T) {
	up := newFakeUpstream()
	up.teachers["t-1"] = &profile.Teacher{ID: "t-1", CurrentLoad: -1}
	up.students["s-1"] = &profile.Student{
		ID: "s-1",
		Personality: &profile.PersonalityProfile{MBTI: &profile.MBTIProfile{
			Percentages: profile.MBTIPercentages{E: 150, I: 30, S: 50, N: 50, T: 50, F: 50, J: 50, P: 50},
		}},
	}
	src := NewResilientSource(up, WithRetrier(fastRetrier()), WithStrictProfiles(true))
	ctx := context.Background()

	_, err := src.TeacherProfile(ctx, "t-1")
	assert.ErrorIs(t, err, shared.ErrNegativeTeacherLoad)

	_, err = src.StudentProfile(ctx, "s-1")
	assert.ErrorIs(t, err, shared.ErrProfileOutOfRange)
	assert.True(t, shared.IsValidation(err))
}
