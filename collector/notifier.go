package collector

import (
	"context"
	"sync"
)

// Notifier fans out notifications to channel subscribers.
// Delivery happens inside Notify, so a subscriber only sees notifications made after it subscribed.
type Notifier[T any] struct {
	mu sync.Mutex
	// subscribers holds the channels for each subscriber while allowing to find a subscriber by its read channel
	subscribers map[<-chan T]chan T
	bufferSize  int
	closeOnce   sync.Once
	closed      bool
}

// NotifierOptions configures a notifier
type NotifierOptions struct {
	// SubscriberBufferSize is the buffer size for each subscriber channel.
	// A subscriber with a full buffer loses its oldest pending notification, never the newest.
	SubscriberBufferSize int
}

// DefaultNotifierOptions returns default options for a notifier
func DefaultNotifierOptions() NotifierOptions {
	return NotifierOptions{
		SubscriberBufferSize: 100,
	}
}

// NewNotifier creates a new notifier with default options
func NewNotifier[T any]() *Notifier[T] {
	return NewNotifierWithOptions[T](DefaultNotifierOptions())
}

// NewNotifierWithOptions creates a new notifier with specified options
func NewNotifierWithOptions[T any](options NotifierOptions) *Notifier[T] {
	return &Notifier[T]{
		subscribers: make(map[<-chan T]chan T),
		bufferSize:  max(options.SubscriberBufferSize, 1),
	}
}

// Subscribe returns a channel that receives notifications.
// The subscription ends and the channel is closed when ctx is done.
func (n *Notifier[T]) Subscribe(ctx context.Context) <-chan T {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		ch := make(chan T)
		close(ch)
		return ch
	}
	ch := make(chan T, n.bufferSize)
	n.subscribers[ch] = ch
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.Unsubscribe(ch)
	}()

	return ch
}

// SubscribeFunc calls fn for every notification on a dedicated goroutine until unsubscribe is called.
func (n *Notifier[T]) SubscribeFunc(fn func(T)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := n.Subscribe(ctx)

	go func() {
		for item := range ch {
			fn(item)
		}
	}()

	return cancel
}

// Unsubscribe removes a subscription
func (n *Notifier[T]) Unsubscribe(ch <-chan T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if realCh, exists := n.subscribers[ch]; exists {
		delete(n.subscribers, ch)
		close(realCh)
	}
}

// Notify delivers a notification to all current subscribers without blocking.
func (n *Notifier[T]) Notify(item T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	for _, ch := range n.subscribers {
		deliver(ch, item)
	}
}

// deliver sends item, evicting the oldest queued items of a full channel.
// Only Notify sends, and it holds the lock, so the loop ends once a slot is free.
func deliver[T any](ch chan T, item T) {
	for {
		select {
		case ch <- item:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Close closes the notifier and all subscriber channels
func (n *Notifier[T]) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.closed = true

		for _, ch := range n.subscribers {
			close(ch)
		}
		n.subscribers = nil
	})
}
