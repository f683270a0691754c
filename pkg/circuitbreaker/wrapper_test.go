package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killrelay/internal/config"
)

var errBoom = errors.New("boom")

func fail() (interface{}, error) { return nil, errBoom }

func TestFromConfig(t *testing.T) {
	cfg := FromConfig("esi", config.CircuitBreakerConfig{
		MaxRequests:  1,
		Timeout:      time.Second,
		FailureRatio: 1,
		MinRequests:  2,
	})

	assert.Equal(t, "esi", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.Equal(t, time.Second, cfg.Timeout)

	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 1, TotalFailures: 1}))
	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 1}))
	assert.True(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 2}))
}

func TestWrapperOpensAfterFailures(t *testing.T) {
	var transitions []gobreaker.State
	cfg := FromConfig("test-open", config.CircuitBreakerConfig{FailureRatio: 0.5, MinRequests: 2})
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }
	w := NewWrapper(cfg)

	ctx := context.Background()
	_, err := w.ExecuteWithContext(ctx, fail)
	require.ErrorIs(t, err, errBoom)
	assert.True(t, w.IsClosed())

	_, err = w.ExecuteWithContext(ctx, fail)
	require.ErrorIs(t, err, errBoom)
	assert.True(t, w.IsOpen())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	called := false
	_, err = w.ExecuteWithContext(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestCancelledCallsDoNotTrip(t *testing.T) {
	w := NewWrapper(FromConfig("test-cancel", config.CircuitBreakerConfig{FailureRatio: 0.5, MinRequests: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := w.ExecuteWithContext(ctx, func() (interface{}, error) {
		cancel()
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, w.IsClosed())

	_, err = w.ExecuteWithContext(ctx, fail)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(1), w.Counts().Requests)
}

func TestExecuteReturnsResult(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-result"))

	out, err := w.Execute(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, "test-result", w.Name())
	assert.False(t, w.IsHalfOpen())
}
