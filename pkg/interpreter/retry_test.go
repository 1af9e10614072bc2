package interpreter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_SucceedsWithoutRetry(t *testing.T) {
	p := DefaultRetryPolicy(nil)
	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	}, func(error) Verdict { return Transient })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryPolicy_PermanentStopsImmediately(t *testing.T) {
	p := DefaultRetryPolicy(nil)
	p.Initial = time.Millisecond
	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("bad")
	}, func(error) Verdict { return Permanent })
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for permanent error, got %d", calls)
	}
}

func TestRetryPolicy_TransientRetriesUpToMaxAttempts(t *testing.T) {
	p := DefaultRetryPolicy(nil)
	p.Initial = time.Millisecond
	p.Max = 5 * time.Millisecond
	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	}, func(error) Verdict { return Transient })
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != p.MaxAttempts {
		t.Fatalf("expected %d calls, got %d", p.MaxAttempts, calls)
	}
}

func TestRetryPolicy_SucceedsAfterTransientRetries(t *testing.T) {
	p := DefaultRetryPolicy(nil)
	p.Initial = time.Millisecond
	calls := 0
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error) Verdict { return Transient })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_ContextCancellation(t *testing.T) {
	p := DefaultRetryPolicy(nil)
	p.Initial = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, "op", func(ctx context.Context) error {
		return errors.New("transient")
	}, func(error) Verdict { return Transient })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
