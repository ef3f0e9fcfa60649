package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))

	// Clamped by MaxDelay
	p.MaxDelay = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, p.NextDelay(3))

	// Zero-value policy still produces a sane delay
	var empty Policy
	assert.Equal(t, time.Second, empty.NextDelay(1))
	assert.Equal(t, time.Second, empty.NextDelay(0))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusInternalServerError}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusUnauthorized}))

	// Network-level failures are transient
	assert.True(t, Retryable(errors.New("connection refused")))
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	logger := zerolog.Nop()
	p := Policy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, BackoffFactor: 2}

	calls := 0
	start := time.Now()
	result, err := Do(context.Background(), &logger, p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &StatusError{StatusCode: http.StatusTooManyRequests}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	// Two backoffs: 10ms + 20ms
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	logger := zerolog.Nop()
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	_, err := Do(context.Background(), &logger, p, func(ctx context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: http.StatusBadRequest, Body: "bad payload"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "terminal errors must not be retried")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestDoReturnsLastErrorOnExhaustion(t *testing.T) {
	logger := zerolog.Nop()
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	_, err := Do(context.Background(), &logger, p, func(ctx context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: http.StatusServiceUnavailable}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestDoAbortsOnContextCancel(t *testing.T) {
	logger := zerolog.Nop()
	p := Policy{MaxAttempts: 10, InitialDelay: time.Hour, BackoffFactor: 2}

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, &logger, p, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("transient")
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not abort on context cancellation")
	}
}
