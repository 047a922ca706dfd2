package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = NewTransientError(errors.New("unavailable"), 503)

func failing(context.Context) error { return errTransient }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("telegram", 2, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after 1 failure, got %s", b.State())
	}
	_ = b.Execute(ctx, failing)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 2 failures, got %s", b.State())
	}

	err := b.Execute(ctx, func(context.Context) error {
		t.Error("must not be called while open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("graph", 1, time.Minute)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("404") })
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("graph", 1, time.Minute)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	// failed probe reopens
	_ = b.Execute(ctx, failing)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after failed probe, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if err := b.Execute(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}
