// Package xhr provides a two-phase, event-driven HTTP request object.
//
// A Request is opened with Open, optionally given headers with
// SetRequestHeader and then started with Send. Send returns immediately; the
// outcome is reported through one-shot or persistent event listeners
// ("load", "error", "abort", "timeout", "loadend").
//
// Open and Send dispatch through a Prototype, a process-wide method table that
// can be swapped at runtime to observe every Request created against it.
package xhr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrInvalidState is returned when a method is called in a ready state that does not allow it.
var ErrInvalidState = errors.New("xhr: invalid state")

// ReadyState is the lifecycle state of a Request
type ReadyState int

const (
	Unsent ReadyState = iota
	Opened
	HeadersReceived
	Loading
	Done
)

func (s ReadyState) String() string {
	switch s {
	case Unsent:
		return "unsent"
	case Opened:
		return "opened"
	case HeadersReceived:
		return "headers-received"
	case Loading:
		return "loading"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("ReadyState(%d)", int(s))
	}
}

// DefaultClient is used by requests without an explicit client.
// Its transport is a clone of http.DefaultTransport taken at init, so requests
// made here never pass through a replaced http.DefaultTransport.
var DefaultClient = &http.Client{Transport: cloneDefaultTransport()}

func cloneDefaultTransport() http.RoundTripper {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return t.Clone()
	}
	return http.DefaultTransport
}

// Options configures a Request
type Options struct {
	// Prototype provides the Open and Send implementations.
	// Default: Default
	Prototype *Prototype
	// Client performs the HTTP exchange.
	// Default: DefaultClient
	Client *http.Client
}

// Request is a single reusable request object. It is safe for concurrent use.
type Request struct {
	proto  *Prototype
	client *http.Client

	mu         sync.Mutex
	state      ReadyState
	method     string
	url        string
	open       openConfig
	header     http.Header
	sent       bool
	aborted    bool
	cancel     context.CancelFunc
	done       chan struct{}
	gen        uint64
	status     int
	statusText string
	respHeader http.Header
	respText   string
	err        error

	listeners map[EventType][]*listenerEntry
	values    map[any]any
}

// New creates a request bound to the Default prototype
func New() *Request {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a request with the given options
func NewWithOptions(options Options) *Request {
	proto := options.Prototype
	if proto == nil {
		proto = Default
	}
	client := options.Client
	if client == nil {
		client = DefaultClient
	}

	done := make(chan struct{})
	close(done)

	return &Request{
		proto:     proto,
		client:    client,
		header:    http.Header{},
		done:      done,
		listeners: make(map[EventType][]*listenerEntry),
		values:    make(map[any]any),
	}
}

// Open initializes the request for the given method and URL.
func (r *Request) Open(method, url string, opts ...OpenOption) error {
	return r.proto.Methods().Open(r, method, url, opts...)
}

// Send starts the request. It returns once the exchange is in flight; the outcome is delivered as events.
func (r *Request) Send(body []byte) error {
	return r.proto.Methods().Send(r, body)
}

// SetRequestHeader adds a header value for the next Send
func (r *Request) SetRequestHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Opened || r.sent {
		return fmt.Errorf("setting header %q: %w", name, ErrInvalidState)
	}
	r.header.Add(name, value)
	return nil
}

// RequestHeader returns a copy of the headers set since the last Open
func (r *Request) RequestHeader() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.Clone()
}

// Abort cancels an in-flight request. The "abort" event is fired instead of "load" or "error".
func (r *Request) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil || r.state == Done {
		return
	}
	r.aborted = true
	r.cancel()
}

// ReadyState returns the current lifecycle state
func (r *Request) ReadyState() ReadyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the HTTP status code, 0 until headers were received
func (r *Request) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// StatusText returns the reason phrase of the response, e.g. "Not Found"
func (r *Request) StatusText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusText
}

// ResponseText returns the full response body once loaded
func (r *Request) ResponseText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respText
}

// ResponseHeader returns a copy of the response headers
func (r *Request) ResponseHeader() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respHeader.Clone()
}

// Err returns the error of a failed, aborted or timed out request
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done returns a channel that is closed after "loadend" listeners ran.
// Before the first Send the channel is already closed.
func (r *Request) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// SetValue stores a value on the request. Keys should be of an unexported type to avoid collisions.
func (r *Request) SetValue(key, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == nil {
		delete(r.values, key)
		return
	}
	r.values[key] = value
}

// Value returns the value stored for key or nil
func (r *Request) Value(key any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key]
}

// NativeOpen is the built-in Open implementation.
func NativeOpen(r *Request, method, url string, opts ...OpenOption) error {
	if method == "" {
		method = http.MethodGet
	}
	if _, err := http.NewRequest(method, url, nil); err != nil {
		return fmt.Errorf("opening request: %w", err)
	}

	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil && r.state != Done {
		r.cancel()
	}

	r.gen++
	r.state = Opened
	r.method = method
	r.url = url
	r.open = cfg
	r.header = http.Header{}
	r.sent = false
	r.aborted = false
	r.cancel = nil
	r.status = 0
	r.statusText = ""
	r.respHeader = nil
	r.respText = ""
	r.err = nil

	return nil
}

// NativeSend is the built-in Send implementation.
func NativeSend(r *Request, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Opened || r.sent {
		return fmt.Errorf("sending request: %w", ErrInvalidState)
	}

	parent := r.open.ctx
	if parent == nil {
		parent = context.Background()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.open.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, r.open.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytesReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader)
	if err != nil {
		cancel()
		return fmt.Errorf("sending request: %w", err)
	}
	req.Header = r.header.Clone()
	if r.open.user != "" || r.open.password != "" {
		req.SetBasicAuth(r.open.user, r.open.password)
	}

	r.sent = true
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, cancel, req, r.gen, r.done)

	return nil
}

func (r *Request) run(ctx context.Context, cancel context.CancelFunc, req *http.Request, gen uint64, done chan struct{}) {
	defer close(done)
	defer cancel()

	resp, err := r.client.Do(req)
	if err == nil {
		if !r.update(gen, func() {
			r.state = HeadersReceived
			r.status = resp.StatusCode
			r.statusText = statusText(resp)
			r.respHeader = resp.Header.Clone()
			r.state = Loading
		}) {
			_ = resp.Body.Close()
			return
		}

		var data []byte
		data, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if err == nil {
			if !r.update(gen, func() {
				r.respText = string(data)
				r.state = Done
			}) {
				return
			}
			r.finish(EventLoad)
			return
		}
	}

	var aborted bool
	if !r.update(gen, func() {
		aborted = r.aborted
		r.state = Done
		r.err = err
	}) {
		return
	}

	switch {
	case aborted, errors.Is(ctx.Err(), context.Canceled):
		r.finish(EventAbort)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.finish(EventTimeout)
	default:
		r.finish(EventError)
	}
}

// update applies fn under the lock unless the request was re-opened since gen.
func (r *Request) update(gen uint64, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	fn()
	return true
}

func (r *Request) finish(typ EventType) {
	r.dispatch(typ)
	r.dispatch(EventLoadEnd)
}
