package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the base delay for exponential backoff.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps a single backoff wait.
	DefaultMaxDelay = 60 * time.Second
	// DefaultMaxJitterPercent is the maximum jitter added to each delay.
	DefaultMaxJitterPercent = 10
)

// Config holds retry configuration.
type Config struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxJitterPercent int
	Logger           *slog.Logger // nil for no logging

	// OnRetry is called before each backoff wait.
	OnRetry func(delay time.Duration, attempt, max int, err error)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       DefaultMaxRetries,
		BaseDelay:        DefaultBaseDelay,
		MaxDelay:         DefaultMaxDelay,
		MaxJitterPercent: DefaultMaxJitterPercent,
	}
}

// Result represents the outcome of an operation that can be retried.
type Result struct {
	Success bool
	Output  string
	Error   error
}

// Operation is a function that can be retried.
type Operation func() Result

// Execute runs an operation with retry logic.
// It retries on retryable errors with exponential backoff and jitter.
// Returns the final result after all attempts.
func Execute(ctx context.Context, cfg Config, op Operation) Result {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxJitterPercent < 0 || cfg.MaxJitterPercent > 100 {
		cfg.MaxJitterPercent = DefaultMaxJitterPercent
	}

	var lastResult Result

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastResult = op()

		if lastResult.Success {
			return lastResult
		}

		// Caller cancellation is never retried
		if ctx.Err() != nil {
			return Result{Output: lastResult.Output, Error: ctx.Err()}
		}

		if !IsRetryable(lastResult.Error) {
			if cfg.Logger != nil {
				cfg.Logger.Debug("non-retryable error, stopping", "error", lastResult.Error)
			}
			return lastResult
		}

		if attempt >= cfg.MaxRetries {
			if cfg.Logger != nil {
				cfg.Logger.Warn("retry attempts exhausted", "attempts", cfg.MaxRetries, "error", lastResult.Error)
			}
			return lastResult
		}

		delay := CalculateDelay(cfg.BaseDelay, attempt, cfg.MaxJitterPercent)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(delay, attempt+1, cfg.MaxRetries, lastResult.Error)
		}
		if cfg.Logger != nil {
			cfg.Logger.Info("retrying", "delay", delay, "attempt", attempt+1, "max", cfg.MaxRetries, "error", lastResult.Error)
		}

		select {
		case <-ctx.Done():
			return Result{
				Success: false,
				Output:  lastResult.Output,
				Error:   ctx.Err(),
			}
		case <-time.After(delay):
		}
	}

	return lastResult
}

// CalculateDelay returns the delay for a given attempt using exponential backoff with jitter.
// Formula: base * 2^attempt + jitter (0-maxJitterPercent% of calculated delay)
func CalculateDelay(base time.Duration, attempt int, maxJitterPercent int) time.Duration {
	multiplier := 1 << attempt // 2^attempt (1, 2, 4, 8, ...)
	delay := base * time.Duration(multiplier)

	if maxJitterPercent > 0 {
		jitterRange := float64(delay) * float64(maxJitterPercent) / 100.0
		jitter := time.Duration(rand.Float64() * jitterRange)
		delay += jitter
	}

	return delay
}

// retryable is implemented by typed errors that know whether they are transient.
type retryable interface {
	Retryable() bool
}

// retryablePatterns contains error message patterns that indicate retryable errors.
var retryablePatterns = []string{
	"rate limit",
	"rate_limit",
	"timeout",
	"timed out",
	"deadline exceeded",
	"network",
	"connection refused",
	"connection reset",
	"temporary failure",
	"service unavailable",
	"503",
	"502",
	"429",
	"overloaded",
	"too many requests",
}

// nonRetryablePatterns contains error message patterns that indicate non-retryable errors.
var nonRetryablePatterns = []string{
	"syntax error",
	"invalid",
	"not found",
	"permission denied",
	"bad request",
	"400",
	"404",
}

// IsRetryable determines if an error is retryable.
// Typed errors decide for themselves; otherwise the message is matched
// against known transient and permanent patterns. Unknown errors are not
// retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	errStr := strings.ToLower(err.Error())

	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
