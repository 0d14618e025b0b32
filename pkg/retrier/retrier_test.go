package retrier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialInterval(time.Millisecond), WithJitter(0)}, opts...)...)
}

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		attempts := 0
		err := fast().Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		err := fast(WithMaxRetries(3)).Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errFlaky
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		err := fast(WithMaxRetries(2)).Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		attempts := 0
		err := fast(WithMaxRetries(5)).Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return Permanent(errFlaky)
		})
		assert.Equal(t, errFlaky, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retry predicate", func(t *testing.T) {
		other := errors.New("bad request")
		attempts := 0
		err := fast(WithMaxRetries(5), WithRetryIf(func(err error) bool {
			return errors.Is(err, errFlaky)
		})).Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				return errFlaky
			}
			return other
		})
		assert.ErrorIs(t, err, other)
		assert.Equal(t, 2, attempts)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond)).Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errFlaky
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})

	t.Run("notify sees every retry", func(t *testing.T) {
		var seen []int
		err := fast(WithMaxRetries(2), WithNotify(func(attempt int, err error, _ time.Duration) {
			seen = append(seen, attempt)
		})).Do(context.Background(), func(ctx context.Context) error {
			return errFlaky
		})
		require.Error(t, err)
		assert.Equal(t, []int{1, 2}, seen)
	})
}

func TestRetrier_BackoffIsCapped(t *testing.T) {
	r := New(WithInitialInterval(time.Second), WithMaxInterval(2*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.backoff(time.Second))

	r = New(WithJitter(0.5))
	for i := 0; i < 100; i++ {
		d := r.backoff(time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestDoWithData(t *testing.T) {
	val, err := DoWithData(context.Background(), fast(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", val)

	val, err = DoWithData(context.Background(), fast(WithMaxRetries(1)), func(ctx context.Context) (string, error) {
		return "", errFlaky
	})
	assert.Error(t, err)
	assert.Empty(t, val)
}
