package api

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls how failed HTTP requests are retried.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the
	// initial request.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to each
	// delay so synchronized clients spread out.
	Jitter float64
	// RetryableOn reports whether a status code should trigger a retry.
	RetryableOn func(statusCode int) bool
}

// DefaultRetryConfig returns the retry schedule used when no option
// overrides it.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
		RetryableOn: defaultRetryable,
	}
}

func defaultRetryable(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// ShouldRetry reports whether another attempt should be made after
// receiving statusCode on the given zero-based attempt.
func (r *RetryConfig) ShouldRetry(attempt, statusCode int) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	return r.RetryableOn(statusCode)
}

// Delay computes the backoff delay for the given attempt, with jitter.
func (r *RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter > 0 {
		spread := delay * r.Jitter
		delay = delay - spread + rand.Float64()*2*spread
	}

	return time.Duration(delay)
}

// Wait sleeps for the attempt's delay or until the context is done.
func (r *RetryConfig) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(r.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
