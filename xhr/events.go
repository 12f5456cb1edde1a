package xhr

import "github.com/samber/lo"

// EventType names an event fired by a Request
type EventType string

const (
	// EventLoad fires when the response was fully received
	EventLoad EventType = "load"
	// EventError fires when the exchange failed
	EventError EventType = "error"
	// EventAbort fires when Abort was called or the open context was cancelled
	EventAbort EventType = "abort"
	// EventTimeout fires when the open timeout elapsed
	EventTimeout EventType = "timeout"
	// EventLoadEnd fires after any of the above
	EventLoadEnd EventType = "loadend"
)

// Listener handles an event of a Request
type Listener func(r *Request)

// ListenerOption configures a listener registration
type ListenerOption func(*listenerEntry)

// Once removes the listener after its first invocation
func Once() ListenerOption {
	return func(e *listenerEntry) {
		e.once = true
	}
}

type listenerEntry struct {
	fn   Listener
	once bool
}

// AddEventListener registers l for events of the given type and returns a func removing it again.
// Listeners are called in registration order on the goroutine completing the request.
func (r *Request) AddEventListener(typ EventType, l Listener, opts ...ListenerOption) (remove func()) {
	if l == nil {
		return func() {}
	}
	entry := &listenerEntry{fn: l}
	for _, opt := range opts {
		opt(entry)
	}

	r.mu.Lock()
	r.listeners[typ] = append(r.listeners[typ], entry)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.listeners[typ] = lo.Without(r.listeners[typ], entry)
	}
}

func (r *Request) dispatch(typ EventType) {
	r.mu.Lock()
	entries := r.listeners[typ]
	r.listeners[typ] = lo.Reject(entries, func(e *listenerEntry, _ int) bool {
		return e.once
	})
	r.mu.Unlock()

	for _, e := range entries {
		r.call(e.fn)
	}
}

// call shields the request from a panicking listener
func (r *Request) call(fn Listener) {
	defer func() {
		_ = recover()
	}()
	fn(r)
}
