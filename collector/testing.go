package collector

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestCollector collects items from a subscription channel for testing.
// This is a test helper that should only be used in tests.
type TestCollector[T any] struct {
	t       testing.TB
	items   []T
	cancel  func()
	timeout time.Duration
	changed chan struct{}
	mu      sync.Mutex
}

// Collect starts collecting from a subscription.
// Use Wait(n) to block until n items are received or timeout.
func Collect[T any](t testing.TB, subscribe func(context.Context) <-chan T) *TestCollector[T] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := subscribe(ctx)

	c := &TestCollector[T]{
		t:       t,
		cancel:  cancel,
		timeout: 2 * time.Second,
		changed: make(chan struct{}, 1),
	}
	t.Cleanup(cancel)

	go func() {
		for item := range ch {
			c.mu.Lock()
			c.items = append(c.items, item)
			c.mu.Unlock()

			select {
			case c.changed <- struct{}{}:
			default:
			}
		}
	}()

	return c
}

// Wait blocks until n items are received and returns them.
// Fails the test on timeout.
func (c *TestCollector[T]) Wait(n int) []T {
	c.t.Helper()
	return c.WaitFor(func(items []T) bool { return len(items) >= n })
}

// WaitFor blocks until done reports true for the items received so far.
// Fails the test on timeout.
func (c *TestCollector[T]) WaitFor(done func(items []T) bool) []T {
	c.t.Helper()
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		items := c.Items()
		if done(items) {
			return items
		}
		select {
		case <-c.changed:
		case <-timer.C:
			c.t.Fatalf("timeout waiting for items, got %d", len(items))
			return nil
		}
	}
}

// Items returns the items collected so far
func (c *TestCollector[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]T, len(c.items))
	copy(items, c.items)
	return items
}

// Stop cancels collection and returns items collected so far.
func (c *TestCollector[T]) Stop() []T {
	c.cancel()
	return c.Items()
}
