package collector

import (
	"io"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// FlattenHeader converts a header collection into a flat mapping, joining
// repeated values with ", ". The result is never nil.
func FlattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return map[string]string{}
	}
	return lo.MapValues(h, func(values []string, _ string) string {
		return strings.Join(values, ", ")
	})
}

// capturePayload reads a replayable request body without touching the caller's stream
func capturePayload(req *http.Request, limit int64) *Payload {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return nil
	}

	rc, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()

	buf := NewLimitedBuffer(int(limit))
	if _, err := buf.ReadFrom(rc); err != nil && err != io.EOF {
		return nil
	}
	return buf.Payload()
}

func payloadOf(body []byte, limit int64) *Payload {
	if body == nil {
		return nil
	}
	buf := NewLimitedBuffer(int(limit))
	_, _ = buf.Write(body)
	return buf.Payload()
}
