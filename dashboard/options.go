package dashboard

import (
	"log/slog"
	"time"

	"github.com/networkteam/netinspector/dashboard/views"
)

// handlerOptions holds configuration for a dashboard Handler.
// This is unexported; use HandlerOption functions to configure.
type handlerOptions struct {
	// PathPrefix is where the handler is mounted (e.g. "/_netinspector").
	PathPrefix string
	// TruncateAfter limits the number of requests listed.
	TruncateAfter int
	// Style is the chroma style for highlighted bodies.
	Style string
	// KeepAliveInterval is the interval of comments sent on idle SSE streams.
	KeepAliveInterval time.Duration
	// OriginPatterns are additional origins allowed to open the WebSocket stream.
	OriginPatterns []string
	// Logger receives diagnostics of failed streams.
	Logger *slog.Logger
}

func defaultHandlerOptions() handlerOptions {
	return handlerOptions{
		Style:             views.DefaultStyle,
		KeepAliveInterval: 15 * time.Second,
		Logger:            slog.New(slog.DiscardHandler),
	}
}

// HandlerOption configures a dashboard Handler.
type HandlerOption func(*handlerOptions)

// WithPathPrefix sets the path prefix where the handler is mounted.
// For example, "/_netinspector" if mounted at that path.
// This is used for generating links in the request list.
func WithPathPrefix(prefix string) HandlerOption {
	return func(o *handlerOptions) {
		o.PathPrefix = prefix
	}
}

// WithTruncateAfter limits the number of requests listed.
// Default is 0, listing everything the ledger holds.
func WithTruncateAfter(limit int) HandlerOption {
	return func(o *handlerOptions) {
		o.TruncateAfter = limit
	}
}

// WithStyle sets the chroma style name used for highlighting.
// Default is "monokai".
func WithStyle(style string) HandlerOption {
	return func(o *handlerOptions) {
		o.Style = style
	}
}

// WithKeepAliveInterval sets how often idle SSE streams receive a keep-alive comment.
// Default is 15 seconds.
func WithKeepAliveInterval(interval time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.KeepAliveInterval = interval
	}
}

// WithOriginPatterns allows cross-origin WebSocket connections from the given host patterns.
func WithOriginPatterns(patterns ...string) HandlerOption {
	return func(o *handlerOptions) {
		o.OriginPatterns = append(o.OriginPatterns, patterns...)
	}
}

// WithLogger sets the logger for the handler.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
