package resilience_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/platform/resilience"
)

func fastOptions() resilience.Options {
	return resilience.Options{
		MaxAttempts:      3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		FailureThreshold: 100,
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503", &resilience.StatusError{Code: http.StatusServiceUnavailable}, true},
		{"429", &resilience.StatusError{Code: http.StatusTooManyRequests}, true},
		{"404", &resilience.StatusError{Code: http.StatusNotFound}, false},
		{"permanent 503", resilience.Permanent(&resilience.StatusError{Code: 503}), false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resilience.Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGuard_RetriesServerErrors(t *testing.T) {
	g := resilience.NewGuard[string]("test", fastOptions())
	calls := 0

	got, err := g.Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &resilience.StatusError{Code: http.StatusBadGateway}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGuard_PermanentNotRetried(t *testing.T) {
	g := resilience.NewGuard[int]("test", fastOptions())
	sentinel := errors.New("not found")
	calls := 0

	_, err := g.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, resilience.Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Do() error = %v, want wrapping %v", err, sentinel)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestGuard_BreakerOpens(t *testing.T) {
	opts := fastOptions()
	opts.MaxAttempts = 1
	opts.FailureThreshold = 2
	opts.OpenTimeout = time.Hour
	g := resilience.NewGuard[int]("test", opts)
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		return 0, &resilience.StatusError{Code: http.StatusInternalServerError}
	}

	for range 2 {
		_, _ = g.Do(context.Background(), op)
	}
	_, err := g.Do(context.Background(), op)
	if err == nil {
		t.Fatal("Do() error = nil with breaker open")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (third call should short-circuit)", calls)
	}
}
