package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBusy)
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithMaxAttempts(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errBusy)
	}, WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsUnwrappedErrorAfterLastAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errBusy)
	}, WithInitialDelay(time.Millisecond), WithMaxAttempts(2))

	assert.Equal(t, errBusy, err)
	assert.Equal(t, 2, calls)
}

func TestStreakRetrier_UsesRetryIf(t *testing.T) {
	attempts := 0
	retried := 0
	r := StreakRetrier(
		func(err error) bool { return errors.Is(err, errBusy) },
		func(int, error, time.Duration) { retried++ },
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return errBusy
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, retried)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
