package views

import (
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/networkteam/netinspector/collector"
)

// StatusClass classifies a record for display: "pending", "success" for 2xx responses, "error" otherwise
func StatusClass(rec collector.Request) string {
	switch s := rec.Status.(type) {
	case collector.Success:
		if s.Code >= 200 && s.Code < 300 {
			return "success"
		}
		return "error"
	case collector.Failure:
		return "error"
	default:
		return "pending"
	}
}

// StatusLabel is the short status shown in a list: "..." while pending, the code or "error"
func StatusLabel(rec collector.Request) string {
	switch s := rec.Status.(type) {
	case collector.Success:
		return strconv.Itoa(s.Code)
	case collector.Failure:
		return "error"
	default:
		return "..."
	}
}

// Details is the secondary line of a list item, e.g. "42ms • 15:04:05"
func Details(rec collector.Request) string {
	clock := rec.CreatedAt.Local().Format("15:04:05")
	if ms, ok := rec.DurationMs(); ok {
		return fmt.Sprintf("%dms • %s", ms, clock)
	}
	return clock
}

// SizeLabel formats a byte count, empty for zero
func SizeLabel(n int) string {
	if n <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(n))
}

// FormatPayload renders a request body for preview: JSON pretty-printed, other text HTML-escaped
func FormatPayload(p *collector.Payload) string {
	if p == nil {
		return ""
	}
	if isJSONDocument(p.Data) {
		return FormatJSON(p.Data)
	}
	return html.EscapeString(p.String())
}

// FormatResponseBody renders a captured response body for preview
func FormatResponseBody(b *collector.ResponseBody) string {
	if b == nil {
		return ""
	}
	if b.Kind == collector.BodyJSON {
		return FormatValue(b.JSON)
	}
	return html.EscapeString(b.Text)
}

// RequestView is the list model of a record
type RequestView struct {
	ID          string `json:"id"`
	Surface     string `json:"surface"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	State       string `json:"state"`
	StatusLabel string `json:"statusLabel"`
	Details     string `json:"details"`
	Age         string `json:"age"`
	RequestSize string `json:"requestSize,omitempty"`
}

// NewRequestView builds the list model of rec
func NewRequestView(rec collector.Request) RequestView {
	return RequestView{
		ID:          rec.ID.String(),
		Surface:     string(rec.Surface),
		Method:      rec.Method,
		URL:         rec.URL,
		State:       StatusClass(rec),
		StatusLabel: StatusLabel(rec),
		Details:     Details(rec),
		Age:         formatDurationSince(rec.CreatedAt),
		RequestSize: SizeLabel(rec.RequestBody.Size()),
	}
}

// ListView builds list models for records, keeping at most limit (0 keeps all)
func ListView(recs []collector.Request, limit int) []RequestView {
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return lo.Map(recs, func(rec collector.Request, _ int) RequestView {
		return NewRequestView(rec)
	})
}

// DetailView is the expanded model of a record
type DetailView struct {
	RequestView

	RequestHeaders  map[string]string `json:"requestHeaders"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	RequestBody     string            `json:"requestBody,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	Truncated       bool              `json:"truncated,omitempty"`
	Message         string            `json:"message,omitempty"`

	Record collector.Request `json:"record"`
}

// NewDetailView builds the expanded model of rec
func NewDetailView(rec collector.Request) DetailView {
	v := DetailView{
		RequestView:     NewRequestView(rec),
		RequestHeaders:  rec.RequestHeaders,
		ResponseHeaders: rec.ResponseHeaders,
		RequestBody:     FormatPayload(rec.RequestBody),
		ResponseBody:    FormatResponseBody(rec.ResponseBody),
		Record:          rec,
	}
	if rec.ResponseBody != nil {
		v.Truncated = rec.ResponseBody.Truncated
	}
	if f, ok := rec.Status.(collector.Failure); ok {
		v.Message = f.Message
	}
	return v
}

func formatDurationSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
