package collector

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/networkteam/netinspector/xhr"
)

const defaultMaxBodySize = 1024 * 1024 // 1MB

// InterceptorOptions configures an interceptor
type InterceptorOptions struct {
	// Transport is the process-wide slot holding the round tripper to observe.
	// Default: &http.DefaultTransport
	Transport *http.RoundTripper
	// Prototype is the xhr method table to observe.
	// Default: xhr.Default
	Prototype *xhr.Prototype

	// DisableTransport skips installation on the Transport slot
	DisableTransport bool
	// DisableXHR skips installation on the Prototype
	DisableXHR bool

	// MaxBodySize is the maximum size in bytes of a captured body
	// Default: 1MB
	MaxBodySize int64

	// CaptureRequestBody indicates whether to capture request bodies
	CaptureRequestBody bool

	// CaptureResponseBody indicates whether to capture response bodies
	CaptureResponseBody bool

	// Logger receives diagnostics of failed bookkeeping. Default: discards everything
	Logger *slog.Logger

	// Metrics receives interception metrics, may be nil
	Metrics *Metrics
}

// DefaultInterceptorOptions returns default options for an interceptor
func DefaultInterceptorOptions() InterceptorOptions {
	return InterceptorOptions{
		MaxBodySize:         defaultMaxBodySize,
		CaptureRequestBody:  true,
		CaptureResponseBody: true,
	}
}

// Interceptor records every call made through the observed surfaces into a ledger.
//
// Install replaces the surfaces process-wide. Several interceptors may be installed
// on the same surface; each call is then recorded once in every installed ledger,
// and the original implementation is restored when the last one is uninstalled.
type Interceptor struct {
	ledger  *Ledger
	options InterceptorOptions
	logger  *slog.Logger

	mu        sync.Mutex
	transport *transportHook
	prototype *xhrHook
}

// NewInterceptor creates an interceptor recording into ledger with default options
func NewInterceptor(ledger *Ledger) *Interceptor {
	return NewInterceptorWithOptions(ledger, DefaultInterceptorOptions())
}

// NewInterceptorWithOptions creates an interceptor with specified options
func NewInterceptorWithOptions(ledger *Ledger, options InterceptorOptions) *Interceptor {
	if options.Transport == nil {
		options.Transport = &http.DefaultTransport
	}
	if options.Prototype == nil {
		options.Prototype = xhr.Default
	}
	if options.MaxBodySize <= 0 {
		options.MaxBodySize = defaultMaxBodySize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Interceptor{
		ledger:  ledger,
		options: options,
		logger:  logger,
	}
}

// Ledger returns the ledger the interceptor records into
func (i *Interceptor) Ledger() *Ledger {
	return i.ledger
}

// Install starts observing the configured surfaces. Calling it again is a no-op.
func (i *Interceptor) Install() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.options.DisableTransport && i.transport == nil {
		i.transport = attachTransport(i.options.Transport, i)
	}
	if !i.options.DisableXHR && i.prototype == nil {
		i.prototype = attachPrototype(i.options.Prototype, i)
	}
}

// Uninstall stops observing. Calling it without a prior Install, or twice, is a no-op.
// Calls in flight still complete their records.
func (i *Interceptor) Uninstall() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.transport != nil {
		detachTransport(i.transport, i)
		i.transport = nil
	}
	if i.prototype != nil {
		detachPrototype(i.prototype, i)
		i.prototype = nil
	}
}

// Installed reports whether the interceptor observes any surface
func (i *Interceptor) Installed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.transport != nil || i.prototype != nil
}

// Transport returns an http.RoundTripper recording calls through next into this
// interceptor's ledger only, independent of Install. A nil next uses http.DefaultTransport.
// Wrapping a transport that is already observed globally records each call twice.
func (i *Interceptor) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return &observedTransport{
		next:   next,
		source: sinkFunc(func() []*Interceptor { return []*Interceptor{i} }),
	}
}
