package collector

import (
	"time"

	"github.com/networkteam/netinspector/xhr"
)

// stashKey keys the values an open leaves on an xhr.Request for its send
type stashKey struct{}

// completionKey keys the completion of the exchange in flight
type completionKey struct{}

type openStash struct {
	method    string
	url       string
	createdAt time.Time
}

func (h *xhrHook) open(r *xhr.Request, method, url string, opts ...xhr.OpenOption) error {
	// Re-opening supersedes the exchange in flight, it never reports an outcome
	if previous, ok := r.Value(completionKey{}).(*eventCompletion); ok {
		previous.detach()
		r.SetValue(completionKey{}, nil)
	}

	r.SetValue(stashKey{}, openStash{method: method, url: url, createdAt: time.Now()})

	if err := h.original.Open(r, method, url, opts...); err != nil {
		r.SetValue(stashKey{}, nil)
		return err
	}
	return nil
}

func (h *xhrHook) send(r *xhr.Request, body []byte) error {
	stash, ok := r.Value(stashKey{}).(openStash)
	sinks := h.sinks()
	if !ok || len(sinks) == 0 {
		return h.original.Send(r, body)
	}
	// A stash belongs to exactly one send
	r.SetValue(stashKey{}, nil)

	logger := sinks[0].logger
	cs := captureSettingsOf(sinks)

	var (
		c    *call
		done *eventCompletion
	)
	safely(logger, "record xhr request", func() {
		rec := newRequest(SurfaceXHR, stash.method, stash.url, FlattenHeader(r.RequestHeader()))
		rec.CreatedAt = stash.createdAt
		if cs.request {
			rec.RequestBody = payloadOf(body, cs.limit)
		}
		c = begin(sinks, rec)

		done = &eventCompletion{r: r, limit: cs.limit, capture: cs.response, logger: logger}
		done.await(c.settle)
		r.SetValue(completionKey{}, done)
	})

	err := h.original.Send(r, body)
	if err != nil && c != nil {
		done.detach()
		c.settle(failed{message: err.Error()})
	}
	return err
}
