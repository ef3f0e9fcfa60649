package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"qbsync/internal/metrics"

	"github.com/rs/zerolog"
)

// Policy defines exponential backoff parameters.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultPolicy matches the sync defaults: three attempts, one second base.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// StatusError carries an HTTP status so failures can be classified.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Retryable classifies a failure: 429 and 5xx are transient, any other HTTP
// status is terminal, and non-HTTP errors are treated as transient network
// failures.
func Retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

// Do runs op up to MaxAttempts times, waiting NextDelay between attempts.
// Terminal failures return immediately; exhaustion returns the last error
// unchanged. Waits run on a timer so a cancelled context aborts the
// sequence instead of tying up the goroutine.
func Do[T any](ctx context.Context, logger *zerolog.Logger, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.NextDelay(attempt)
		metrics.IncRetry()
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retryable failure, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Error().Err(lastErr).Int("attempts", p.MaxAttempts).Msg("retries exhausted")
	return zero, lastErr
}
