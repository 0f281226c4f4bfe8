// Package domain defines retry entities used by the LLM Gateway's
// in-call backoff.
package domain

import (
	"time"
)

// RetryConfig defines retry behavior for LLM Gateway calls. The
// broker-level asynq MaxRetry is configured separately
// (config.Config.QueueMaxRetry).
type RetryConfig struct {
	// MaxRetries is the maximum number of in-call retry attempts the
	// LLM Gateway performs before converting exhaustion into a
	// retriable application error (§4.3).
	MaxRetries int
	// InitialDelay is the base of the exponential backoff (base x 2^attempt).
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// Jitter makes CalculateDelay add a fixed 10% to the delay; it adds
	// no randomness.
	Jitter bool
}

// DefaultRetryConfig returns the spec's default backoff: base ~1s,
// bounded to ~3 attempts (§4.3).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// CalculateDelay returns the exponential backoff delay for the given
// zero-based attempt index, honoring MaxDelay and optional jitter.
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(c.InitialDelay) * pow(c.Multiplier, float64(attempt)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter {
		delay += time.Duration(float64(delay) * 0.1)
	}
	return delay
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
