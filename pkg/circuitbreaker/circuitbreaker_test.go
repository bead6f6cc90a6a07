package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("connection refused")

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var transitions []string
	cb := New("test",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	clock := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.Equal(t, 1, cb.Counts().Rejected)

	clock = clock.Add(time.Minute)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second))
	clock := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	clock = clock.Add(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	// The open period restarts from the failed probe.
	clock = clock.Add(500 * time.Millisecond)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.State())

	cb.Reset()
	assert.Equal(t, Counts{}, cb.Counts())
}
