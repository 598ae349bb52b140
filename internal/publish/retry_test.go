package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

func testRetrier(p Policy) (*Retrier, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := NewRetrier(p)
	r.sleep = clock.sleep
	r.now = clock.now
	return r, clock
}

func failWith(status int, calls *int) AttemptFunc {
	return func(ctx context.Context) Outcome {
		*calls++
		return Outcome{StatusCode: status, Message: "boom"}
	}
}

func TestDoPermanentMakesExactlyOneAttempt(t *testing.T) {
	for _, status := range []int{400, 403, 404} {
		r, clock := testRetrier(Policy{MaxAttempts: 5, Interval: 5 * time.Second, RateLimitWait: 30 * time.Second, Budget: time.Minute})

		calls := 0
		err := r.Do(context.Background(), failWith(status, &calls))

		require.Error(t, err, "status %d", status)
		var perm *PermanentError
		require.ErrorAs(t, err, &perm)
		assert.Equal(t, status, perm.StatusCode)
		assert.Equal(t, 1, calls)
		assert.Empty(t, clock.sleeps)
	}
}

func TestDoRateLimitUsesExtendedWait(t *testing.T) {
	r, clock := testRetrier(Policy{MaxAttempts: 3, Interval: 5 * time.Second, RateLimitWait: 30 * time.Second, Budget: 5 * time.Minute})

	calls := 0
	err := r.Do(context.Background(), failWith(429, &calls))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, calls)
	require.Len(t, clock.sleeps, 2)
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, 30*time.Second)
	}
}

func TestDoTransientRetriesWithNormalInterval(t *testing.T) {
	for _, status := range []int{500, 503, 599} {
		r, clock := testRetrier(Policy{MaxAttempts: 4, Interval: 5 * time.Second, RateLimitWait: 30 * time.Second, Budget: 5 * time.Minute})

		calls := 0
		err := r.Do(context.Background(), failWith(status, &calls))

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted, "status %d", status)
		assert.Equal(t, 4, calls)
		require.Len(t, clock.sleeps, 3)
		for _, d := range clock.sleeps {
			assert.Equal(t, 5*time.Second, d)
		}
	}
}

func TestDoUnknownRetriedAsTransient(t *testing.T) {
	r, clock := testRetrier(Policy{MaxAttempts: 2, Interval: 5 * time.Second, RateLimitWait: 30 * time.Second, Budget: 5 * time.Minute})

	calls := 0
	err := r.Do(context.Background(), failWith(418, &calls))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	r, clock := testRetrier(Policy{MaxAttempts: 5, Interval: 5 * time.Second, Budget: time.Minute})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) Outcome {
		calls++
		return Outcome{OK: true}
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	r, _ := testRetrier(Policy{MaxAttempts: 5, Interval: 5 * time.Second, Budget: 5 * time.Minute})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) Outcome {
		calls++
		if calls < 3 {
			return Outcome{StatusCode: 500}
		}
		return Outcome{OK: true}
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoBudgetWinsOverRemainingAttempts(t *testing.T) {
	r, clock := testRetrier(Policy{MaxAttempts: 10, Interval: 5 * time.Second, Budget: 30 * time.Second})

	calls := 0
	err := r.Do(context.Background(), failWith(500, &calls))

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 30*time.Second, timeout.Budget)
	assert.Less(t, calls, 10)
	assert.Equal(t, calls, timeout.Attempts)
	assert.Equal(t, calls, len(clock.sleeps))
}

func TestDoMalformedResponseIsPermanent(t *testing.T) {
	r, _ := testRetrier(Policy{MaxAttempts: 5, Interval: 5 * time.Second, Budget: time.Minute})

	calls := 0
	malformed := &MalformedResponseError{Endpoint: "x", Cause: errors.New("bad json")}
	err := r.Do(context.Background(), func(ctx context.Context) Outcome {
		calls++
		return Outcome{StatusCode: 200, Err: malformed}
	})

	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, malformed)
}

func TestDoCancelledContext(t *testing.T) {
	r, _ := testRetrier(Policy{MaxAttempts: 5, Interval: time.Second, Budget: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Do(ctx, failWith(500, &calls))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
