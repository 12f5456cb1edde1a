package dashboard_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/netinspector/collector"
	"github.com/networkteam/netinspector/dashboard"
)

func seedLedger(t *testing.T) (*collector.Ledger, collector.Request, collector.Request) {
	t.Helper()

	ledger := collector.NewLedger(10)
	t.Cleanup(ledger.Close)

	created := time.Now()
	text := collector.Request{
		ID:             uuid.Must(uuid.NewV7()),
		Surface:        collector.SurfaceHTTP,
		Method:         "POST",
		URL:            "https://example.com/text",
		RequestHeaders: map[string]string{"Content-Type": "text/plain"},
		RequestBody:    &collector.Payload{Data: []byte("ping")},
		CreatedAt:      created,
		Status:         collector.Success{Code: 404, Text: "Not Found"},
		ResponseHeaders: map[string]string{
			"Content-Type": "text/plain",
		},
		ResponseBody: &collector.ResponseBody{Kind: collector.BodyText, Text: "nope"},
		CompletedAt:  created.Add(5 * time.Millisecond),
	}
	jsonRec := collector.Request{
		ID:              uuid.Must(uuid.NewV7()),
		Surface:         collector.SurfaceXHR,
		Method:          "GET",
		URL:             "https://example.com/json",
		RequestHeaders:  map[string]string{},
		CreatedAt:       created,
		Status:          collector.Success{Code: 200, Text: "OK"},
		ResponseHeaders: map[string]string{"Content-Type": "application/json"},
		ResponseBody:    &collector.ResponseBody{Kind: collector.BodyJSON, JSON: map[string]any{"a": float64(1)}},
		CompletedAt:     created.Add(time.Millisecond),
	}
	ledger.Append(text)
	ledger.Append(jsonRec)

	return ledger, text, jsonRec
}

func TestHandler_ListRequests(t *testing.T) {
	ledger, text, jsonRec := seedLedger(t)
	handler := dashboard.NewHandler(ledger, dashboard.WithPathPrefix("/_netinspector"))
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)

	assert.Equal(t, jsonRec.ID.String(), items[0]["id"])
	assert.Equal(t, "success", items[0]["state"])
	assert.Equal(t, "/_netinspector/requests/"+jsonRec.ID.String(), items[0]["href"])

	assert.Equal(t, text.ID.String(), items[1]["id"])
	assert.Equal(t, "error", items[1]["state"])
	assert.Equal(t, "404", items[1]["statusLabel"])
}

func TestHandler_TruncateAfter(t *testing.T) {
	ledger, _, jsonRec := seedLedger(t)
	handler := dashboard.NewHandler(ledger, dashboard.WithTruncateAfter(1))
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests", nil))

	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, jsonRec.ID.String(), items[0]["id"])
}

func TestHandler_GetRequest(t *testing.T) {
	ledger, text, _ := seedLedger(t)
	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/"+text.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "ping", detail["requestBody"])
	assert.Equal(t, "nope", detail["responseBody"])
	assert.Equal(t, "POST", detail["method"])

	record := detail["record"].(map[string]any)
	assert.Equal(t, float64(5), record["durationMs"])
}

func TestHandler_GetRequestErrors(t *testing.T) {
	ledger, _, _ := seedLedger(t)
	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/"+uuid.Must(uuid.NewV7()).String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_DownloadBodies(t *testing.T) {
	ledger, text, jsonRec := seedLedger(t)
	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/"+text.ID.String()+"/request-body", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "request-body-"+text.ID.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/"+jsonRec.ID.String()+"/request-body", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/"+jsonRec.ID.String()+"/response-body", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/requests/"+jsonRec.ID.String()+"/response-body?format=html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `class="chroma"`)
}

func TestHandler_Clear(t *testing.T) {
	ledger, _, _ := seedLedger(t)
	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ledger.Snapshot())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/clear", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_Styles(t *testing.T) {
	ledger, _, _ := seedLedger(t)
	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/styles.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".chroma")
}

func TestHandler_EventsSSE(t *testing.T) {
	ledger, _, _ := seedLedger(t)
	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", server.URL+"/events-sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: keepalive\n", line)

	// The subscription exists once the connected message was sent
	ledger.Clear()

	// Changes from seeding may still be delivered first
	var msg map[string]any
	for msg["kind"] != "cleared" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok || !strings.HasPrefix(data, "{") {
			continue
		}
		msg = nil
		require.NoError(t, json.Unmarshal([]byte(data), &msg))
	}

	assert.Equal(t, float64(0), msg["size"])
}

func TestHandler_EventsWS(t *testing.T) {
	ledger := collector.NewLedger(10)
	defer ledger.Close()

	handler := dashboard.NewHandler(ledger)
	defer handler.Close()

	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	rec := collector.Request{
		ID:             uuid.Must(uuid.NewV7()),
		Method:         "GET",
		URL:            "https://example.com/ws",
		RequestHeaders: map[string]string{},
		CreatedAt:      time.Now(),
		Status:         collector.Pending{},
	}

	// The server subscribes after the handshake; append until the first change arrives
	received := make(chan map[string]any, 1)
	go func() {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err == nil {
			received <- msg
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case msg := <-received:
			assert.Equal(t, "appended", msg["kind"])
			request := msg["request"].(map[string]any)
			assert.Equal(t, "https://example.com/ws", request["url"])
			assert.Equal(t, "pending", request["state"])
			return
		case <-ticker.C:
			ledger.Append(rec)
			rec.ID = uuid.Must(uuid.NewV7())
		case <-ctx.Done():
			t.Fatal("no change received")
		}
	}
}
