// Package netinspector records every outgoing request of the process into a
// bounded, live history.
//
// An Instance observes two surfaces: the http.RoundTripper in
// http.DefaultTransport (or another slot) and the xhr.Prototype method table.
// Each call becomes a record that is pending until the call completes.
package netinspector

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/networkteam/netinspector/collector"
	"github.com/networkteam/netinspector/dashboard"
)

type Instance struct {
	ledger      *collector.Ledger
	interceptor *collector.Interceptor
	metrics     *collector.Metrics
	logger      *slog.Logger

	mu                sync.Mutex
	dashboardHandlers []*dashboard.Handler
}

type Options struct {
	// Capacity is the maximum number of requests to keep.
	// Default: 0, will use collector.DefaultCapacity
	Capacity uint64

	// InterceptorOptions are the options for intercepting the surfaces.
	// Default: nil, will use collector.DefaultInterceptorOptions()
	InterceptorOptions *collector.InterceptorOptions

	// NotifierOptions are the options for change notifications.
	// Default: nil, will use collector.DefaultNotifierOptions()
	NotifierOptions *collector.NotifierOptions

	// Logger receives diagnostics. It overrides InterceptorOptions.Logger if set.
	// Default: nil, discards everything
	Logger *slog.Logger

	// MetricsRegisterer registers Prometheus metrics of the instance.
	// Default: nil, no metrics are collected
	MetricsRegisterer prometheus.Registerer
}

// New creates a new instance with default options. Call Install to start observing.
func New() *Instance {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a new instance with the specified options.
// Default options are the zero value of Options.
func NewWithOptions(options Options) *Instance {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var metrics *collector.Metrics
	if options.MetricsRegisterer != nil {
		metrics = collector.NewMetricsWithRegistry(options.MetricsRegisterer)
	}

	ledger := collector.NewLedgerWithOptions(options.Capacity, collector.LedgerOptions{
		NotifierOptions: options.NotifierOptions,
		Metrics:         metrics,
	})

	interceptorOptions := collector.DefaultInterceptorOptions()
	if options.InterceptorOptions != nil {
		interceptorOptions = *options.InterceptorOptions
	}
	if options.Logger != nil || interceptorOptions.Logger == nil {
		interceptorOptions.Logger = logger
	}
	if interceptorOptions.Metrics == nil {
		interceptorOptions.Metrics = metrics
	}

	return &Instance{
		ledger:      ledger,
		interceptor: collector.NewInterceptorWithOptions(ledger, interceptorOptions),
		metrics:     metrics,
		logger:      logger,
	}
}

// Install starts observing the surfaces. Calling it again is a no-op.
func (i *Instance) Install() {
	i.interceptor.Install()
	i.logger.Debug("Installed network inspector")
}

// Uninstall restores the original surfaces. Calling it again is a no-op.
func (i *Instance) Uninstall() {
	i.interceptor.Uninstall()
	i.logger.Debug("Uninstalled network inspector")
}

// Installed reports whether the instance observes any surface
func (i *Instance) Installed() bool {
	return i.interceptor.Installed()
}

// Close uninstalls the instance and ends all subscriptions and dashboard streams.
func (i *Instance) Close() {
	i.interceptor.Uninstall()

	i.mu.Lock()
	for _, h := range i.dashboardHandlers {
		h.Close()
	}
	i.dashboardHandlers = nil
	i.mu.Unlock()

	i.ledger.Close()
}

// Snapshot returns all recorded requests, newest first
func (i *Instance) Snapshot() []collector.Request {
	return i.ledger.Snapshot()
}

// Subscribe returns a channel receiving a change for every mutation of the history
func (i *Instance) Subscribe(ctx context.Context) <-chan collector.Change {
	return i.ledger.Subscribe(ctx)
}

// SubscribeFunc calls listener for every mutation of the history until unsubscribe is called
func (i *Instance) SubscribeFunc(listener func(collector.Change)) (unsubscribe func()) {
	return i.ledger.SubscribeFunc(listener)
}

// Clear removes all recorded requests
func (i *Instance) Clear() {
	i.ledger.Clear()
}

// Ledger returns the underlying history
func (i *Instance) Ledger() *collector.Ledger {
	return i.ledger
}

// Metrics returns the metrics of the instance, nil without a MetricsRegisterer
func (i *Instance) Metrics() *collector.Metrics {
	return i.metrics
}

// CollectHTTPClient wraps an http.RoundTripper to record its requests without installing globally.
func (i *Instance) CollectHTTPClient(transport http.RoundTripper) http.RoundTripper {
	return i.interceptor.Transport(transport)
}

// DashboardHandler returns a handler serving the history under pathPrefix.
func (i *Instance) DashboardHandler(pathPrefix string, opts ...dashboard.HandlerOption) http.Handler {
	opts = append([]dashboard.HandlerOption{
		dashboard.WithPathPrefix(pathPrefix),
		dashboard.WithLogger(i.logger),
	}, opts...)
	handler := dashboard.NewHandler(i.ledger, opts...)

	i.mu.Lock()
	i.dashboardHandlers = append(i.dashboardHandlers, handler)
	i.mu.Unlock()

	return handler
}
