package collector_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/netinspector/collector"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
	var zero T
	return zero
}

func TestNotifier_MultipleSubscribers(t *testing.T) {
	t.Parallel()

	notifier := collector.NewNotifier[string]()
	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribers := make([]<-chan string, 5)
	for i := range subscribers {
		subscribers[i] = notifier.Subscribe(ctx)
	}

	notifier.Notify("hello")

	for _, ch := range subscribers {
		assert.Equal(t, "hello", receive(t, ch))
	}
}

func TestNotifier_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	notifier := collector.NewNotifier[int]()
	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := notifier.Subscribe(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestNotifier_SubscribeFunc(t *testing.T) {
	t.Parallel()

	notifier := collector.NewNotifier[int]()
	defer notifier.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	unsubscribe := notifier.SubscribeFunc(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	})

	notifier.Notify(1)
	notifier.Notify(2)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	mu.Lock()
	assert.Equal(t, []int{1, 2}, got)
	mu.Unlock()
}

func TestNotifier_SlowSubscriberKeepsNewest(t *testing.T) {
	t.Parallel()

	notifier := collector.NewNotifierWithOptions[int](collector.NotifierOptions{
		SubscriberBufferSize: 2,
	})
	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := notifier.Subscribe(ctx)
	fast := notifier.Subscribe(ctx)

	for i := 0; i < 5; i++ {
		notifier.Notify(i)
		assert.Equal(t, i, receive(t, fast))
	}

	// The oldest notifications gave way to the newest ones
	assert.Equal(t, 3, receive(t, slow))
	assert.Equal(t, 4, receive(t, slow))
	select {
	case v := <-slow:
		t.Fatalf("unexpected notification %d", v)
	default:
	}
}

func TestNotifier_OnlyDeliversLaterNotifications(t *testing.T) {
	t.Parallel()

	notifier := collector.NewNotifier[string]()
	defer notifier.Close()

	notifier.Notify("before")

	ch := notifier.Subscribe(t.Context())
	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %q", v)
	default:
	}

	notifier.Notify("after")
	assert.Equal(t, "after", receive(t, ch))
}

func TestNotifier_Close(t *testing.T) {
	t.Parallel()

	notifier := collector.NewNotifier[string]()

	ch := notifier.Subscribe(context.Background())
	notifier.Close()
	notifier.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Notify and Subscribe after close are safe
	notifier.Notify("ignored")
	_, ok = <-notifier.Subscribe(context.Background())
	assert.False(t, ok)
}
