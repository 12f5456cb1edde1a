package collector

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/networkteam/netinspector/xhr"
)

// call is one intercepted call, recorded in the ledger of every sink
type call struct {
	id        uuid.UUID
	surface   Surface
	createdAt time.Time
	sinks     []*Interceptor

	once sync.Once
}

func begin(sinks []*Interceptor, rec Request) *call {
	for _, s := range sinks {
		s.ledger.Append(s.ownRecord(rec))
		s.options.Metrics.observed(rec.Surface)
	}
	return &call{
		id:        rec.ID,
		surface:   rec.Surface,
		createdAt: rec.CreatedAt,
		sinks:     sinks,
	}
}

// settle applies the outcome to every ledger. Only the first outcome counts.
func (c *call) settle(o outcome) {
	c.once.Do(func() {
		at := time.Now()
		for _, s := range c.sinks {
			safely(s.logger, "settle request", func() {
				own := s.ownOutcome(o)
				s.ledger.UpdateByID(c.id, func(r *Request) { r.settle(own, at) })
				s.options.Metrics.completed(c.surface, o, at.Sub(c.createdAt))
			})
		}
	})
}

// ownRecord drops a request body captured for other sinks sharing the call
func (i *Interceptor) ownRecord(rec Request) Request {
	if !i.options.CaptureRequestBody {
		rec.RequestBody = nil
	}
	return rec
}

// ownOutcome drops a response body captured for other sinks sharing the call
func (i *Interceptor) ownOutcome(o outcome) outcome {
	if s, ok := o.(succeeded); ok && !i.options.CaptureResponseBody {
		s.capture = NotCaptured{Reason: "disabled"}
		return s
	}
	return o
}

// captureSettings is the union of what the sinks of a call want captured
type captureSettings struct {
	request  bool
	response bool
	limit    int64
}

func captureSettingsOf(sinks []*Interceptor) captureSettings {
	var cs captureSettings
	for _, s := range sinks {
		cs.request = cs.request || s.options.CaptureRequestBody
		cs.response = cs.response || s.options.CaptureResponseBody
		cs.limit = max(cs.limit, s.options.MaxBodySize)
	}
	return cs
}

// safely runs bookkeeping that must never affect the observed call
func safely(logger *slog.Logger, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("Observation failed", slog.String("step", step), slog.Any("panic", r))
		}
	}()
	fn()
}

// completion attaches to the native way a primitive reports its outcome
// and settles the call from it
type completion interface {
	await(settle func(outcome))
}

// roundTripCompletion is the outcome of a returned RoundTrip
type roundTripCompletion struct {
	req     *http.Request
	resp    *http.Response
	err     error
	capture captureSettings
	logger  *slog.Logger
}

var _ completion = roundTripCompletion{}

func (c roundTripCompletion) await(settle func(outcome)) {
	if c.err != nil {
		settle(failed{message: c.err.Error()})
		return
	}
	if c.resp == nil {
		settle(failed{message: "no response"})
		return
	}

	o := succeeded{
		code:    c.resp.StatusCode,
		text:    statusText(c.resp),
		headers: FlattenHeader(c.resp.Header),
		capture: NotCaptured{Reason: "disabled"},
	}
	safely(c.logger, "capture response body", func() {
		o.capture = captureResponse(c.req, c.resp, c.capture)
	})
	settle(o)
}

func captureResponse(req *http.Request, resp *http.Response, cs captureSettings) Capture {
	if !cs.response {
		return NotCaptured{Reason: "disabled"}
	}
	if req.Method == http.MethodHead || resp.Body == nil || resp.Body == http.NoBody ||
		resp.StatusCode == http.StatusSwitchingProtocols {
		return NotCaptured{Reason: "no body"}
	}

	contentType := resp.Header.Get("Content-Type")
	switch kind := ClassifyContentType(contentType); kind {
	case MediaJSON, MediaText:
	case MediaStream:
		return NotCaptured{Reason: "streaming response"}
	default:
		return NotCaptured{Reason: "content type " + contentType}
	}

	cloned := cloneResponseBody(resp, cs.limit)
	return CaptureBody(contentType, resp.Header.Get("Content-Encoding"), cloned.data, cloned.truncated)
}

// eventCompletion is the outcome reported by the terminal events of an xhr.Request.
// Abort and timeout do not settle the call.
type eventCompletion struct {
	r       *xhr.Request
	limit   int64
	capture bool
	logger  *slog.Logger

	removeLoad  func()
	removeError func()
}

var _ completion = (*eventCompletion)(nil)

func (c *eventCompletion) await(settle func(outcome)) {
	c.removeLoad = c.r.AddEventListener(xhr.EventLoad, func(r *xhr.Request) {
		c.removeError()
		header := r.ResponseHeader()
		o := succeeded{
			code:    r.Status(),
			text:    r.StatusText(),
			headers: FlattenHeader(header),
			capture: NotCaptured{Reason: "disabled"},
		}
		if c.capture {
			safely(c.logger, "capture response text", func() {
				o.capture = captureText(header.Get("Content-Type"), r.ResponseText(), c.limit)
			})
		}
		settle(o)
	}, xhr.Once())

	c.removeError = c.r.AddEventListener(xhr.EventError, func(r *xhr.Request) {
		c.removeLoad()
		message := "network error"
		if err := r.Err(); err != nil {
			message = err.Error()
		}
		settle(failed{message: message})
	}, xhr.Once())
}

// detach removes listeners of a Send that never started
func (c *eventCompletion) detach() {
	if c.removeLoad != nil {
		c.removeLoad()
	}
	if c.removeError != nil {
		c.removeError()
	}
}

func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
