package moderation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrierRetriesTransientThenSucceeds(t *testing.T) {
	r := NewRetrier(nil, nil)
	attempts := 0
	err := r.Do(context.Background(), ClassBanKick, func(ctx context.Context, attempt int) error {
		attempts++
		if attempt < 2 {
			return &AdapterError{Kind: AdapterHTTPError, Status: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetrierDoesNotRetryPermanentErrors(t *testing.T) {
	r := NewRetrier(nil, nil)
	attempts := 0
	err := r.Do(context.Background(), ClassBanKick, func(ctx context.Context, attempt int) error {
		attempts++
		return &AdapterError{Kind: AdapterForbidden}
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", attempts)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	policies := map[OperationClass]RetryPolicy{
		ClassBanKick: {
			MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond,
			BackoffMultiplier: 1, FailureThreshold: 3, SuccessThreshold: 1, OpenDuration: time.Hour,
		},
	}
	var trips int
	r := NewRetrier(policies, func(OperationClass) { trips++ })

	permanentFail := func(ctx context.Context, attempt int) error {
		return &AdapterError{Kind: AdapterForbidden}
	}
	for i := 0; i < 3; i++ {
		if err := r.Do(context.Background(), ClassBanKick, permanentFail); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	if trips != 1 {
		t.Fatalf("expected exactly one trip after 3 consecutive failures, got %d", trips)
	}

	called := false
	err := r.Do(context.Background(), ClassBanKick, func(ctx context.Context, attempt int) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("expected the open breaker to short-circuit without invoking the adapter")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	policies := map[OperationClass]RetryPolicy{
		ClassDatabase: {
			MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond,
			BackoffMultiplier: 1, FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: 10 * time.Millisecond,
		},
	}
	r := NewRetrier(policies, nil)

	_ = r.Do(context.Background(), ClassDatabase, func(ctx context.Context, attempt int) error {
		return &AdapterError{Kind: AdapterForbidden}
	})
	if r.Breaker(ClassDatabase).State() != Open {
		t.Fatalf("expected breaker to be open after a single failure with threshold 1")
	}

	time.Sleep(15 * time.Millisecond)

	err := r.Do(context.Background(), ClassDatabase, func(ctx context.Context, attempt int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected half-open trial to succeed, got %v", err)
	}
	if r.Breaker(ClassDatabase).State() != Closed {
		t.Fatalf("expected breaker to close after a successful half-open trial")
	}
}
