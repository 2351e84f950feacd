package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type transientErr struct{ retry bool }

func (e *transientErr) Error() string   { return "typed failure" }
func (e *transientErr) Retryable() bool { return e.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rate limit", errors.New("API rate limit exceeded"), true},
		{"timeout", errors.New("request timed out"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"429", errors.New("HTTP 429 Too Many Requests"), true},
		{"503", errors.New("server returned 503"), true},
		{"case insensitive", errors.New("RATE LIMIT hit"), true},

		{"syntax error", errors.New("syntax error in prompt"), false},
		{"bad request", errors.New("HTTP 400 Bad Request"), false},
		{"not found", errors.New("model not found"), false},
		{"unknown", errors.New("something went wrong"), false},
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("call failed: %w", context.Canceled), false},

		// Typed errors override message matching
		{"typed retryable", &transientErr{retry: true}, true},
		{"typed permanent", &transientErr{retry: false}, false},
		{"wrapped typed", fmt.Errorf("stage research: %w", &transientErr{retry: true}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		jitter  int
		min     time.Duration
		max     time.Duration
	}{
		{"first attempt", time.Second, 0, 0, time.Second, time.Second},
		{"second attempt doubles", time.Second, 1, 0, 2 * time.Second, 2 * time.Second},
		{"third attempt quadruples", time.Second, 2, 0, 4 * time.Second, 4 * time.Second},
		{"ten percent jitter", 10 * time.Second, 0, 10, 10 * time.Second, 11 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDelay(tt.base, tt.attempt, tt.jitter)
			if got < tt.min || got > tt.max {
				t.Errorf("CalculateDelay(%v, %d, %d) = %v, want in [%v, %v]",
					tt.base, tt.attempt, tt.jitter, got, tt.min, tt.max)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", cfg.BaseDelay, DefaultBaseDelay)
	}
	if cfg.MaxDelay != DefaultMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", cfg.MaxDelay, DefaultMaxDelay)
	}
	if cfg.Logger != nil {
		t.Error("Logger should be nil by default")
	}
}

func TestExecute_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	op := func() Result {
		attempts++
		if attempts < 3 {
			return Result{Error: errors.New("rate limit exceeded")}
		}
		return Result{Success: true, Output: "done"}
	}

	result := Execute(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond}, op)
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Error)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	op := func() Result {
		attempts++
		return Result{Error: &transientErr{retry: false}}
	}

	result := Execute(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond}, op)
	if result.Success {
		t.Fatal("expected failure")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestExecute_ExhaustedRetries(t *testing.T) {
	attempts := 0
	var notified []int
	op := func() Result {
		attempts++
		return Result{Error: &transientErr{retry: true}}
	}

	cfg := Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry: func(_ time.Duration, attempt, _ int, _ error) {
			notified = append(notified, attempt)
		},
	}
	result := Execute(context.Background(), cfg, op)
	if result.Success {
		t.Fatal("expected failure")
	}
	// Initial attempt + 3 retries
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	if len(notified) != 3 || notified[2] != 3 {
		t.Errorf("OnRetry attempts = %v, want [1 2 3]", notified)
	}
}

func TestExecute_MaxDelayCaps(t *testing.T) {
	var delays []time.Duration
	op := func() Result { return Result{Error: errors.New("503")} }

	cfg := Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		OnRetry: func(d time.Duration, _, _ int, _ error) {
			delays = append(delays, d)
		},
	}
	Execute(context.Background(), cfg, op)
	for _, d := range delays {
		if d > time.Millisecond {
			t.Errorf("delay %v exceeds MaxDelay", d)
		}
	}
}

func TestExecute_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	op := func() Result {
		attempts++
		cancel()
		return Result{Error: errors.New("rate limit exceeded")}
	}

	result := Execute(ctx, Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond}, op)
	if !errors.Is(result.Error, context.Canceled) {
		t.Errorf("Error = %v, want context.Canceled", result.Error)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestExecute_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	attempts := 0
	op := func() Result {
		attempts++
		if attempts < 2 {
			return Result{Error: errors.New("rate limit exceeded")}
		}
		return Result{Success: true}
	}

	Execute(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond, Logger: logger}, op)

	log := buf.String()
	if !strings.Contains(log, "retrying") {
		t.Errorf("log should mention retrying, got %q", log)
	}
	if !strings.Contains(log, "attempt=1") {
		t.Errorf("log should carry attempt=1, got %q", log)
	}
}
