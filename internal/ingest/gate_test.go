package ingest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGate_AcquireRelease(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	if err := g.acquire(ctx, "camera-01", time.Second); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	g.release("camera-01")
	if err := g.acquire(ctx, "camera-01", time.Second); err != nil {
		t.Fatalf("acquire() after release error = %v", err)
	}
}

func TestGate_TimesOutWhenHeld(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	if err := g.acquire(ctx, "camera-01", time.Second); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	err := g.acquire(ctx, "camera-01", 20*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("error = %v, want ErrLockTimeout", err)
	}
	if !IsRetryable(err) {
		t.Error("lock timeout must be retryable")
	}
}

func TestGate_CamerasIndependent(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	if err := g.acquire(ctx, "camera-01", time.Second); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	if err := g.acquire(ctx, "camera-02", 50*time.Millisecond); err != nil {
		t.Fatalf("other camera blocked: %v", err)
	}
}

func TestGate_ContextCancel(t *testing.T) {
	g := newGate()

	if err := g.acquire(context.Background(), "camera-01", time.Second); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.acquire(ctx, "camera-01", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
