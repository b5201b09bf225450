package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
	"github.com/alem-hub/afterschool-matching/pkg/circuitbreaker"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
	"github.com/alem-hub/afterschool-matching/pkg/retry"
)

// ProfileCache is the cache-aside store used by ResilientSource.
// *redis.ProfileCache implements it.
type ProfileCache interface {
	GetStudent(ctx context.Context, id shared.StudentID) (*profile.Student, bool, error)
	SetStudent(ctx context.Context, s *profile.Student) error
	GetTeacher(ctx context.Context, id shared.TeacherID) (*profile.Teacher, bool, error)
	SetTeacher(ctx context.Context, t *profile.Teacher) error
}

// ResilientSource wraps an upstream profile.Source with a read-through cache,
// retries, a circuit breaker, a per-fetch timeout and ingestion validation.
// Cached snapshots are already validated.
type ResilientSource struct {
	upstream     profile.Source
	cache        ProfileCache
	retrier      *retry.Retrier
	breaker      *circuitbreaker.Breaker
	validator    *ProfileValidator
	strict       bool
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	log          *logger.Logger
}

// SourceOption configures a ResilientSource.
type SourceOption func(*ResilientSource)

// WithCache enables the read-through cache.
func WithCache(c ProfileCache) SourceOption {
	return func(s *ResilientSource) { s.cache = c }
}

// WithRetrier replaces the default retrier.
func WithRetrier(r *retry.Retrier) SourceOption {
	return func(s *ResilientSource) { s.retrier = r }
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *circuitbreaker.Breaker) SourceOption {
	return func(s *ResilientSource) { s.breaker = b }
}

// WithStrictProfiles rejects out-of-range snapshots instead of clamping them.
func WithStrictProfiles(strict bool) SourceOption {
	return func(s *ResilientSource) { s.strict = strict }
}

// WithFetchTimeout bounds a single upstream attempt.
func WithFetchTimeout(d time.Duration) SourceOption {
	return func(s *ResilientSource) { s.fetchTimeout = d }
}

// WithSourceMetrics records fetch outcomes.
func WithSourceMetrics(m *metrics.Metrics) SourceOption {
	return func(s *ResilientSource) { s.metrics = m }
}

// WithSourceLogger sets the logger.
func WithSourceLogger(l *logger.Logger) SourceOption {
	return func(s *ResilientSource) { s.log = l }
}

// NewResilientSource creates a ResilientSource over upstream.
func NewResilientSource(upstream profile.Source, opts ...SourceOption) *ResilientSource {
	s := &ResilientSource{
		upstream:     upstream,
		validator:    NewProfileValidator(),
		fetchTimeout: 5 * time.Second,
		log:          logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retrier == nil {
		s.retrier = retry.ProfileStoreRetrier(3, 100*time.Millisecond, 2*time.Second, IsRetryableFetch)
	}
	if s.breaker == nil {
		s.breaker = circuitbreaker.ProfileStoreBreaker(5, 30*time.Second, 1, shared.IsNotFound, nil)
	}
	s.log = s.log.Named("profile_source")
	return s
}

// IsRetryableFetch reports whether an upstream fetch error is worth another
// attempt. Misses, validation failures, cancellation and breaker rejections
// are final.
func IsRetryableFetch(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case circuitbreaker.IsRejected(err):
		return false
	case shared.IsNotFound(err), shared.IsValidation(err):
		return false
	}
	return true
}

// StudentProfile implements profile.Source.
func (s *ResilientSource) StudentProfile(ctx context.Context, id shared.StudentID) (*profile.Student, error) {
	const kind = string(profile.OwnerStudent)

	if s.cache != nil {
		cached, hit, err := s.cache.GetStudent(ctx, id)
		if err != nil {
			s.log.Warn("profile cache read failed", logger.StudentID(id.String()), logger.Err(err))
		} else if hit {
			s.metrics.ProfileFetch(kind, metrics.FetchHit)
			return cached, nil
		}
	}

	st, err := fetch(ctx, s, func(ctx context.Context) (*profile.Student, error) {
		return s.upstream.StudentProfile(ctx, id)
	})
	switch {
	case shared.IsNotFound(err):
		st = nil
	case err != nil:
		s.metrics.ProfileFetch(kind, metrics.FetchError)
		return nil, unavailable("StudentProfile", "student "+id.String(), err)
	}
	if st == nil {
		st = &profile.Student{ID: id}
	}

	res, err := s.validator.Sanitize(st.Personality, s.strict)
	if err != nil {
		s.metrics.ProfileFetch(kind, metrics.FetchRejected)
		s.log.Warn("student profile rejected", logger.StudentID(id.String()), logger.Err(err))
		return nil, err
	}
	out := &profile.Student{ID: st.ID, Personality: res.Profile}
	s.reportSanitized(kind, id.String(), res)

	if s.cache != nil {
		if err := s.cache.SetStudent(ctx, out); err != nil {
			s.log.Warn("profile cache write failed", logger.StudentID(id.String()), logger.Err(err))
		}
	}
	return out, nil
}

// TeacherProfile implements profile.Source. An unknown teacher yields an
// error of kind shared.ErrNotFound.
func (s *ResilientSource) TeacherProfile(ctx context.Context, id shared.TeacherID) (*profile.Teacher, error) {
	const kind = string(profile.OwnerTeacher)

	if s.cache != nil {
		cached, hit, err := s.cache.GetTeacher(ctx, id)
		if err != nil {
			s.log.Warn("profile cache read failed", logger.TeacherID(id.String()), logger.Err(err))
		} else if hit {
			s.metrics.ProfileFetch(kind, metrics.FetchHit)
			return cached, nil
		}
	}

	t, err := fetch(ctx, s, func(ctx context.Context) (*profile.Teacher, error) {
		return s.upstream.TeacherProfile(ctx, id)
	})
	if err != nil {
		if shared.IsNotFound(err) {
			s.metrics.ProfileFetch(kind, metrics.FetchMiss)
			return nil, err
		}
		s.metrics.ProfileFetch(kind, metrics.FetchError)
		return nil, unavailable("TeacherProfile", "teacher "+id.String(), err)
	}
	if t == nil {
		s.metrics.ProfileFetch(kind, metrics.FetchMiss)
		return nil, shared.WrapError("profile", "TeacherProfile", shared.ErrNotFound,
			"teacher "+id.String()+" not found", shared.ErrTeacherNotFound)
	}

	load := t.CurrentLoad
	if load < 0 {
		if s.strict {
			s.metrics.ProfileFetch(kind, metrics.FetchRejected)
			return nil, s.validator.ValidateTeacher(t)
		}
		load = profile.ClampLoad(load)
		s.log.Warn("teacher load clamped",
			logger.TeacherID(id.String()), logger.Int("from", t.CurrentLoad), logger.Int("to", load))
	}

	res, err := s.validator.Sanitize(t.Personality, s.strict)
	if err != nil {
		s.metrics.ProfileFetch(kind, metrics.FetchRejected)
		s.log.Warn("teacher profile rejected", logger.TeacherID(id.String()), logger.Err(err))
		return nil, err
	}
	out := &profile.Teacher{ID: t.ID, Personality: res.Profile, CurrentLoad: load}
	if load != t.CurrentLoad && !res.Changed() {
		s.metrics.ProfileFetch(kind, metrics.FetchClamped)
	} else {
		s.reportSanitized(kind, id.String(), res)
	}

	if s.cache != nil {
		if err := s.cache.SetTeacher(ctx, out); err != nil {
			s.log.Warn("profile cache write failed", logger.TeacherID(id.String()), logger.Err(err))
		}
	}
	return out, nil
}

// Breaker exposes the underlying breaker for health reporting.
func (s *ResilientSource) Breaker() *circuitbreaker.Breaker {
	return s.breaker
}

func (s *ResilientSource) reportSanitized(kind, ownerID string, res Sanitized) {
	if !res.Changed() {
		s.metrics.ProfileFetch(kind, metrics.FetchMiss)
		return
	}
	s.metrics.ProfileFetch(kind, metrics.FetchClamped)

	fields := make([]logger.Field, 0, 4)
	fields = append(fields,
		logger.String("owner_kind", kind),
		logger.String("owner_id", ownerID),
		logger.Any("adjustments", res.Adjustments),
	)
	if len(res.Dropped) > 0 {
		fields = append(fields, logger.Strings("dropped", res.Dropped))
	}
	s.log.Warn("profile clamped at ingestion", fields...)
}

// fetch runs one upstream read under the breaker, with retries outside it so
// that each attempt is counted.
func fetch[T any](ctx context.Context, s *ResilientSource, op func(context.Context) (T, error)) (T, error) {
	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (T, error) {
		return circuitbreaker.Call(ctx, s.breaker, func(ctx context.Context) (T, error) {
			if s.fetchTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
				defer cancel()
			}
			return op(ctx)
		})
	})
}

func unavailable(op, subject string, err error) error {
	return shared.WrapError("profile", op, shared.ErrServiceUnavailable,
		subject+" profile unavailable", fmt.Errorf("%w: %w", shared.ErrProfileUnavailable, err))
}
