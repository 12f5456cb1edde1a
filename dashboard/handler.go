package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/samber/lo"

	"github.com/networkteam/netinspector/collector"
	"github.com/networkteam/netinspector/dashboard/views"
)

// Handler serves the read surface of a ledger over HTTP.
type Handler struct {
	ledger  *collector.Ledger
	options handlerOptions

	router chi.Router

	closed    chan struct{}
	closeOnce sync.Once
}

// NewHandler creates a dashboard handler for ledger.
func NewHandler(ledger *collector.Ledger, opts ...HandlerOption) *Handler {
	options := defaultHandlerOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.KeepAliveInterval <= 0 {
		options.KeepAliveInterval = defaultHandlerOptions().KeepAliveInterval
	}

	handler := &Handler{
		ledger:  ledger,
		options: options,
		router:  chi.NewRouter(),
		closed:  make(chan struct{}),
	}

	r := handler.router
	r.Get("/requests", handler.getRequests)
	r.Get("/requests/{id}", handler.getRequest)
	r.Get("/requests/{id}/request-body", handler.downloadRequestBody)
	r.Get("/requests/{id}/response-body", handler.downloadResponseBody)
	r.Post("/clear", handler.clear)
	r.Get("/events-sse", handler.getEventsSSE)
	r.Get("/ws", handler.getEventsWS)
	r.Get("/styles.css", handler.getStyles)

	return handler
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Close ends all open change streams.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
}

type listItem struct {
	views.RequestView
	Href string `json:"href"`
}

type changeMessage struct {
	Kind    collector.ChangeKind `json:"kind"`
	ID      string               `json:"id,omitempty"`
	Size    int                  `json:"size"`
	Request *listItem            `json:"request,omitempty"`
}

func (h *Handler) listItem(rec collector.Request) listItem {
	return h.item(views.NewRequestView(rec))
}

func (h *Handler) item(v views.RequestView) listItem {
	return listItem{
		RequestView: v,
		Href:        fmt.Sprintf("%s/requests/%s", h.options.PathPrefix, v.ID),
	}
}

func (h *Handler) changeMessage(change collector.Change) changeMessage {
	msg := changeMessage{Kind: change.Kind, Size: change.Size}
	if change.ID != uuid.Nil {
		msg.ID = change.ID.String()
		if rec, ok := h.ledger.Get(change.ID); ok {
			item := h.listItem(rec)
			msg.Request = &item
		}
	}
	return msg
}

func (h *Handler) getRequests(w http.ResponseWriter, r *http.Request) {
	list := views.ListView(h.ledger.Snapshot(), h.options.TruncateAfter)
	writeJSON(w, lo.Map(list, func(v views.RequestView, _ int) listItem {
		return h.item(v)
	}))
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, views.NewDetailView(rec))
}

// lookup resolves the record of the id URL parameter or writes an error response
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (collector.Request, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid request id", http.StatusBadRequest)
		return collector.Request{}, false
	}

	rec, exists := h.ledger.Get(id)
	if !exists {
		http.Error(w, "Request not found", http.StatusNotFound)
		return collector.Request{}, false
	}
	return rec, true
}

// downloadRequestBody handles downloading the captured request body
func (h *Handler) downloadRequestBody(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if rec.RequestBody == nil {
		http.Error(w, "No request body available", http.StatusNotFound)
		return
	}

	writeBody(w, rec.RequestBody.Data, rec.RequestHeaders["Content-Type"], fmt.Sprintf("request-body-%s", rec.ID))
}

// downloadResponseBody handles downloading the captured response body. With format=html the body is highlighted.
func (h *Handler) downloadResponseBody(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if rec.ResponseBody == nil {
		http.Error(w, "No response body available", http.StatusNotFound)
		return
	}

	contentType := rec.ResponseHeaders["Content-Type"]
	var body []byte
	switch rec.ResponseBody.Kind {
	case collector.BodyJSON:
		body = []byte(views.FormatValue(rec.ResponseBody.JSON))
		if contentType == "" {
			contentType = "application/json"
		}
	default:
		body = []byte(rec.ResponseBody.Text)
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := views.Highlight(w, string(body), contentType, h.options.Style); err != nil {
			h.options.Logger.Debug("Highlighting response body failed", slog.String("id", rec.ID.String()), slog.Any("error", err))
		}
		return
	}

	writeBody(w, body, contentType, fmt.Sprintf("response-body-%s", rec.ID))
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	h.ledger.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getStyles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	if err := views.WriteStyles(w, h.options.Style); err != nil {
		h.options.Logger.Debug("Writing styles failed", slog.Any("error", err))
	}
}

// getEventsSSE streams ledger changes as server-sent events
func (h *Handler) getEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For NGINX proxy

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes := h.ledger.Subscribe(ctx)

	// Send a keep-alive message initially to ensure the connection is established
	fmt.Fprintf(w, "event: keepalive\ndata: connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.options.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closed:
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(h.changeMessage(change))
			if err != nil {
				h.options.Logger.Debug("Encoding change failed", slog.Any("error", err))
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// getEventsWS streams ledger changes as JSON messages over a WebSocket
func (h *Handler) getEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.options.OriginPatterns,
	})
	if err != nil {
		h.options.Logger.Debug("Accepting WebSocket failed", slog.Any("error", err))
		return
	}
	defer conn.CloseNow()

	// The stream is write-only, CloseRead handles control frames and cancels on close
	ctx := conn.CloseRead(r.Context())
	changes := h.ledger.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closed:
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case change, ok := <-changes:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, h.changeMessage(change)); err != nil {
				h.options.Logger.Debug("Writing change failed", slog.Any("error", err))
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func writeBody(w http.ResponseWriter, body []byte, contentType, filename string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}
