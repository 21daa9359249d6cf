package ingest

import (
	"context"
	"sync"
	"time"
)

// gate serializes uploads per camera. Matching and writing must not
// interleave for the same camera or two concurrent uploads could both
// decide to create a record for the same location.
type gate struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newGate() *gate {
	return &gate{sems: make(map[string]chan struct{})}
}

func (g *gate) sem(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	sem, ok := g.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		g.sems[key] = sem
	}
	return sem
}

// acquire blocks until the camera's slot is free, the timeout elapses,
// or ctx is cancelled.
func (g *gate) acquire(ctx context.Context, key string, timeout time.Duration) error {
	sem := g.sem(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release(key string) {
	select {
	case <-g.sem(key):
	default:
	}
}
