package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, c.Set(ctx, "k", payload{Name: "x", Count: 2}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "x", Count: 2}, got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestCache_Validation(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)

	require.NoError(t, c.client.Set(ctx, "bad", "{not json", 0).Err())
	var v map[string]any
	assert.ErrorIs(t, c.Get(ctx, "bad", &v), ErrCacheSerialization)
}

func TestCache_DeleteByPattern(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for _, k := range []string{"profile:student:a", "profile:teacher:b", "other"} {
		require.NoError(t, c.Set(ctx, k, 1, 0))
	}

	n, err := c.DeleteByPattern(ctx, "profile:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("other"))
	assert.False(t, mr.Exists("profile:student:a"))
}

func TestCache_TryLock(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	release, err := c.TryLock(ctx, "propose:team-a", time.Minute)
	require.NoError(t, err)

	_, err = c.TryLock(ctx, "propose:team-a", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(LockKey("propose:team-a")))

	_, err = c.TryLock(ctx, "propose:team-a", time.Minute)
	assert.NoError(t, err)
}

func TestCache_ReleaseDoesNotStealForeignLock(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	release, err := c.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = c.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists(LockKey("job")))
}

func TestProfileCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	pc := NewProfileCache(c, 30*time.Second)
	ctx := context.Background()

	_, hit, err := pc.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, hit)

	teacher := &profile.Teacher{
		ID:          "t-1",
		CurrentLoad: 7,
		Personality: &profile.PersonalityProfile{
			FiveElements: &profile.FiveElements{Wood: 1, Fire: 2},
			Version:      2,
		},
	}
	require.NoError(t, pc.SetTeacher(ctx, teacher))
	assert.Equal(t, 30*time.Second, mr.TTL(TeacherProfileKey("t-1")))

	got, hit, err := pc.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, teacher, got)

	student := &profile.Student{ID: "s-1"}
	require.NoError(t, pc.SetStudent(ctx, student))
	gotStudent, hit, err := pc.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Nil(t, gotStudent.Personality)

	require.NoError(t, pc.Invalidate(ctx, profile.OwnerTeacher, "t-1"))
	_, hit, _ = pc.GetTeacher(ctx, "t-1")
	assert.False(t, hit)

	n, err := pc.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
