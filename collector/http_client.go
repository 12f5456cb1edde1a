package collector

import (
	"net/http"
)

// observedTransport is an http.RoundTripper recording every call into the ledgers of its sinks.
// The request is never modified; the response body is replaced by an identical replay when captured.
type observedTransport struct {
	next   http.RoundTripper
	source sinkSource
}

func (t *observedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sinks := t.source.sinks()
	if len(sinks) == 0 {
		return t.next.RoundTrip(req)
	}
	logger := sinks[0].logger
	cs := captureSettingsOf(sinks)

	var c *call
	safely(logger, "record request", func() {
		rec := newRequest(SurfaceHTTP, req.Method, req.URL.String(), FlattenHeader(req.Header))
		if cs.request {
			rec.RequestBody = capturePayload(req, cs.limit)
		}
		c = begin(sinks, rec)
	})

	resp, err := t.next.RoundTrip(req)

	if c != nil {
		roundTripCompletion{
			req:     req,
			resp:    resp,
			err:     err,
			capture: cs,
			logger:  logger,
		}.await(c.settle)
	}

	return resp, err
}
