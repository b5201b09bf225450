package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(opts ...Option) *Retrier {
	base := []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
	return New(append(base, opts...)...)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var notified []int

	r := fast(WithMaxAttempts(4), WithOnRetry(func(attempt int, err error, _ time.Duration) {
		notified = append(notified, attempt)
		assert.ErrorIs(t, err, errFlaky)
	}))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(2)).Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	errBad := errors.New("bad input")

	err := fast(WithMaxAttempts(5)).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errBad)
	})

	assert.ErrorIs(t, err, errBad)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIfFiltersErrors(t *testing.T) {
	calls := 0
	r := fast(WithMaxAttempts(5), WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))

	_, err := DoWithData(context.Background(), r, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("not retryable")
	})

	assert.EqualError(t, err, "not retryable")
	assert.Equal(t, 1, calls)
}

func TestDoWithData_ReturnsValue(t *testing.T) {
	v, err := DoWithData(context.Background(), fast(), func(context.Context) (string, error) {
		return "profile", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "profile", v)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(errFlaky)))
}
