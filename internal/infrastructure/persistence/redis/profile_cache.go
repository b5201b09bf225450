package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ProfileCache caches profile snapshots by owner. Teacher entries include the
// current load, so the TTL bounds how stale a load score can get.
type ProfileCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProfileCache creates a ProfileCache. A non-positive ttl uses
// TTLProfileCache.
func NewProfileCache(cache *Cache, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = TTLProfileCache
	}
	return &ProfileCache{cache: cache, ttl: ttl}
}

// StudentProfileKey generates a cache key for a student profile.
func StudentProfileKey(id shared.StudentID) string {
	return PrefixProfile + string(profile.OwnerStudent) + ":" + id.String()
}

// TeacherProfileKey generates a cache key for a teacher profile.
func TeacherProfileKey(id shared.TeacherID) string {
	return PrefixProfile + string(profile.OwnerTeacher) + ":" + id.String()
}

// GetStudent returns the cached snapshot. The bool is false on a miss.
func (p *ProfileCache) GetStudent(ctx context.Context, id shared.StudentID) (*profile.Student, bool, error) {
	var s profile.Student
	if err := p.cache.Get(ctx, StudentProfileKey(id), &s); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &s, true, nil
}

// SetStudent caches a student snapshot.
func (p *ProfileCache) SetStudent(ctx context.Context, s *profile.Student) error {
	if s == nil {
		return ErrCacheNilValue
	}
	return p.cache.Set(ctx, StudentProfileKey(s.ID), s, p.ttl)
}

// GetTeacher returns the cached snapshot. The bool is false on a miss.
func (p *ProfileCache) GetTeacher(ctx context.Context, id shared.TeacherID) (*profile.Teacher, bool, error) {
	var t profile.Teacher
	if err := p.cache.Get(ctx, TeacherProfileKey(id), &t); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &t, true, nil
}

// SetTeacher caches a teacher snapshot.
func (p *ProfileCache) SetTeacher(ctx context.Context, t *profile.Teacher) error {
	if t == nil {
		return ErrCacheNilValue
	}
	return p.cache.Set(ctx, TeacherProfileKey(t.ID), t, p.ttl)
}

// Invalidate drops the cached snapshot of one owner, typically after an
// ingestion upsert.
func (p *ProfileCache) Invalidate(ctx context.Context, kind profile.OwnerKind, ownerID string) error {
	return p.cache.Delete(ctx, PrefixProfile+string(kind)+":"+ownerID)
}

// InvalidateAll clears every cached profile.
func (p *ProfileCache) InvalidateAll(ctx context.Context) (int, error) {
	return p.cache.DeleteByPattern(ctx, PrefixProfile+"*")
}
