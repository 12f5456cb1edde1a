package collector

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid"
)

// Surface identifies the network primitive a request was observed on
type Surface string

const (
	// SurfaceHTTP is the http.RoundTripper surface
	SurfaceHTTP Surface = "http"
	// SurfaceXHR is the two-phase xhr.Request surface
	SurfaceXHR Surface = "xhr"
)

// Status is the lifecycle state of an observed request: Pending, Success or Failure.
type Status interface {
	// Terminal reports whether the request finished
	Terminal() bool
	// State is "pending", "success" or "error"
	State() string

	isStatus()
}

// Pending is the state of a request still in flight
type Pending struct{}

func (Pending) Terminal() bool { return false }
func (Pending) State() string  { return "pending" }
func (Pending) isStatus()      {}

// Success is the state of a request that received a response, regardless of its status code
type Success struct {
	Code int
	Text string
}

func (Success) Terminal() bool { return true }
func (Success) State() string  { return "success" }
func (Success) isStatus()      {}

// Failure is the state of a request whose primitive reported an error
type Failure struct {
	Message string
}

func (Failure) Terminal() bool { return true }
func (Failure) State() string  { return "error" }
func (Failure) isStatus()      {}

// Payload is a captured request body
type Payload struct {
	Data      []byte
	Truncated bool
}

// String returns the payload as text
func (p *Payload) String() string {
	if p == nil {
		return ""
	}
	return string(p.Data)
}

// Size returns the number of captured bytes
func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

// BodyKind tells how a response body was captured
type BodyKind string

const (
	BodyJSON BodyKind = "json"
	BodyText BodyKind = "text"
)

// ResponseBody is a captured response body. JSON is set for BodyJSON, Text for BodyText.
type ResponseBody struct {
	Kind      BodyKind
	JSON      any
	Text      string
	Truncated bool
}

// Value returns the parsed JSON value or the text
func (b *ResponseBody) Value() any {
	if b == nil {
		return nil
	}
	if b.Kind == BodyJSON {
		return b.JSON
	}
	return b.Text
}

// Request is the record of one observed call
type Request struct {
	ID uuid.UUID
	// Seq is a process-wide creation counter, strictly increasing
	Seq     uint64
	Surface Surface

	Method         string
	URL            string
	RequestHeaders map[string]string
	RequestBody    *Payload
	CreatedAt      time.Time

	Status          Status
	ResponseHeaders map[string]string
	ResponseBody    *ResponseBody
	CompletedAt     time.Time
}

// Identity returns the ID for lookups in the ledger buffer
func (r Request) Identity() uuid.UUID {
	return r.ID
}

// Pending reports whether the request is still in flight
func (r Request) Pending() bool {
	return r.Status == nil || !r.Status.Terminal()
}

// Duration returns the time from creation to the terminal transition.
// ok is false while the request is pending.
func (r Request) Duration() (d time.Duration, ok bool) {
	if r.Pending() || r.CompletedAt.IsZero() {
		return 0, false
	}
	return r.CompletedAt.Sub(r.CreatedAt), true
}

// DurationMs returns Duration in whole milliseconds
func (r Request) DurationMs() (int64, bool) {
	d, ok := r.Duration()
	return d.Milliseconds(), ok
}

var seq atomic.Uint64

func generateID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func newRequest(surface Surface, method, url string, headers map[string]string) Request {
	if method == "" {
		method = http.MethodGet
	}
	if headers == nil {
		headers = map[string]string{}
	}
	return Request{
		ID:             generateID(),
		Seq:            seq.Add(1),
		Surface:        surface,
		Method:         method,
		URL:            url,
		RequestHeaders: headers,
		CreatedAt:      time.Now(),
		Status:         Pending{},
	}
}

// outcome is the settled result of a call, applied to its record exactly once
type outcome interface {
	apply(r *Request)
	label() string
}

type succeeded struct {
	code    int
	text    string
	headers map[string]string
	capture Capture
}

func (o succeeded) apply(r *Request) {
	r.Status = Success{Code: o.code, Text: o.text}
	r.ResponseHeaders = o.headers
	if c, ok := o.capture.(Captured); ok {
		body := c.Body
		r.ResponseBody = &body
	}
}

func (o succeeded) label() string { return "success" }

type failed struct {
	message string
}

func (o failed) apply(r *Request) {
	r.Status = Failure{Message: o.message}
}

func (o failed) label() string { return "error" }

// settle moves a pending record to its terminal state. A terminal record is left untouched.
func (r *Request) settle(o outcome, at time.Time) bool {
	if !r.Pending() {
		return false
	}
	o.apply(r)
	r.CompletedAt = at
	return true
}

type requestJSON struct {
	ID                    uuid.UUID         `json:"id"`
	Seq                   uint64            `json:"seq"`
	Surface               Surface           `json:"surface"`
	Method                string            `json:"method"`
	URL                   string            `json:"url"`
	RequestHeaders        map[string]string `json:"requestHeaders"`
	RequestBody           *string           `json:"requestBody,omitempty"`
	RequestBodyTruncated  bool              `json:"requestBodyTruncated,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	Status                statusJSON        `json:"status"`
	ResponseHeaders       map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody          any               `json:"responseBody,omitempty"`
	ResponseBodyTruncated bool              `json:"responseBodyTruncated,omitempty"`
	DurationMs            *int64            `json:"durationMs,omitempty"`
}

type statusJSON struct {
	State   string `json:"state"`
	Code    int    `json:"code,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON renders the record for the dashboard
func (r Request) MarshalJSON() ([]byte, error) {
	v := requestJSON{
		ID:              r.ID,
		Seq:             r.Seq,
		Surface:         r.Surface,
		Method:          r.Method,
		URL:             r.URL,
		RequestHeaders:  r.RequestHeaders,
		CreatedAt:       r.CreatedAt,
		ResponseHeaders: r.ResponseHeaders,
	}
	if r.RequestBody != nil {
		// Binary payloads are not representable as JSON text
		if utf8.Valid(r.RequestBody.Data) {
			s := r.RequestBody.String()
			v.RequestBody = &s
		}
		v.RequestBodyTruncated = r.RequestBody.Truncated
	}
	if r.ResponseBody != nil {
		v.ResponseBody = r.ResponseBody.Value()
		v.ResponseBodyTruncated = r.ResponseBody.Truncated
	}

	switch s := r.Status.(type) {
	case Success:
		v.Status = statusJSON{State: s.State(), Code: s.Code, Text: s.Text}
	case Failure:
		v.Status = statusJSON{State: s.State(), Message: s.Message}
	default:
		v.Status = statusJSON{State: Pending{}.State()}
	}

	if ms, ok := r.DurationMs(); ok {
		v.DurationMs = &ms
	}

	return json.Marshal(v)
}
