package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return &APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "unavailable"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return &APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "unavailable"}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Error = %v, want ErrRetryExhausted", err)
	}
	if calls != 3 {
		t.Errorf("Calls = %d, want 3 (max attempts)", calls)
	}
}

func TestRetryWithBackoff_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	authErr := &APIError{StatusCode: 401, ErrorClass: ErrorClassAuth, Message: "unauthorized"}
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return authErr
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassAuth {
		t.Errorf("Error = %v, want the auth APIError", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Auth error must not be wrapped in ErrRetryExhausted")
	}
	if calls != 1 {
		t.Errorf("Calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	config := testRetryConfig()
	config.InitialBackoff = 500 * time.Millisecond

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- retryWithBackoff(ctx, config, zerolog.Nop(), func() error {
			calls++
			return &APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "unavailable"}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("Error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retryWithBackoff did not return after cancellation")
	}

	if calls != 1 {
		t.Errorf("Calls = %d, want 1 (cancelled during first backoff)", calls)
	}
}

func TestRetryWithBackoff_ZeroAttemptsCoercedToOne(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), RetryConfig{}, zerolog.Nop(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Calls = %d, want 1", calls)
	}
}
