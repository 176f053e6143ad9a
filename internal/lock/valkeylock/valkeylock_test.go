package valkeylock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/spigell/resume-matcher/internal/lock"

	"go.uber.org/zap"
)

func setUpTestLocker(t *testing.T) *Locker {
	t.Helper()

	address := os.Getenv("VALKEY_TEST_URL")
	if address == "" {
		t.Skip("VALKEY_TEST_URL not set, skipping integration test")
	}

	locker, err := New(context.Background(), Config{
		Address:      address,
		TTL:          5 * time.Second,
		PollInterval: 20 * time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to test valkey: %v", err)
	}
	t.Cleanup(locker.Close)

	return locker
}

func TestAcquireRelease(t *testing.T) {
	locker := setUpTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "test-acquire-release")
	if err != nil {
		t.Fatalf("Acquire() returned an unexpected error: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release returned an unexpected error: %v", err)
	}

	// the key is free again
	release, err = locker.Acquire(ctx, "test-acquire-release")
	if err != nil {
		t.Fatalf("second Acquire() returned an unexpected error: %v", err)
	}
	_ = release(ctx)
}

func TestAcquireHeldLockTimesOut(t *testing.T) {
	locker := setUpTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "test-held")
	if err != nil {
		t.Fatalf("Acquire() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = release(ctx) })

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	if _, err := locker.Acquire(waitCtx, "test-held"); !errors.Is(err, lock.ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}
