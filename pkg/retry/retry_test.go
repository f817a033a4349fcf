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

func recordingSleeper(waits *[]time.Duration) Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestPolicy_LinearBackoffUntilExhausted(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		MaxAttempts: 3,
		Backoff:     Linear(time.Second),
		Retryable:   func(err error) bool { return errors.Is(err, errFlaky) },
		Sleep:       recordingSleeper(&waits),
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errFlaky
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestPolicy_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	var waits []time.Duration
	p := Policy{MaxAttempts: 5, Backoff: Linear(time.Second), Retryable: func(err error) bool { return err == errFlaky }, Sleep: recordingSleeper(&waits)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, waits, 1)
}

func TestPolicy_SucceedsAfterRetry(t *testing.T) {
	var waits []time.Duration
	p := Policy{MaxAttempts: 3, Backoff: Linear(10 * time.Millisecond), Retryable: func(error) bool { return true }, Sleep: recordingSleeper(&waits)}

	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt < 2 {
			return errFlaky
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, waits)
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
