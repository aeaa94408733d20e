package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("connection refused")

func fast(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := fast(2).Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ZeroPolicyTriesOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIfFilters(t *testing.T) {
	errAuth := errors.New("password authentication failed")
	p := fast(5)
	p.RetryIf = func(err error) bool { return !errors.Is(err, errAuth) }

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errAuth
	})
	assert.ErrorIs(t, err, errAuth)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStops(t *testing.T) {
	calls := 0
	err := fast(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(Permanent(errFlaky)))
	assert.Nil(t, Permanent(nil))
}

func TestConnect(t *testing.T) {
	var retries []int
	p := Connect(4, func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	})
	assert.Equal(t, 250*time.Millisecond, p.Initial)
	p.Initial, p.Max = time.Millisecond, time.Millisecond

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retries)
}

func TestValue(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), fast(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "pong", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fast(3).Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	p := Policy{Attempts: 3, Initial: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }
	err = p.Do(ctx, func(context.Context) error { return errFlaky })
	assert.Equal(t, errFlaky, err, "the last operation error wins over ctx.Err")
}

func TestDelay(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(10))

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
