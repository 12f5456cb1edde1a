package collector

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/andybalholm/brotli"
)

// Capture is the result of a best-effort body capture: Captured or NotCaptured.
// A NotCaptured result is never an error of the observed call.
type Capture interface {
	isCapture()
}

// Captured holds a successfully captured body
type Captured struct {
	Body ResponseBody
}

func (Captured) isCapture() {}

// NotCaptured tells why no body was captured
type NotCaptured struct {
	Reason string
}

func (NotCaptured) isCapture() {}

// MediaKind classifies a content type for capture
type MediaKind int

const (
	MediaOther MediaKind = iota
	MediaJSON
	MediaText
	// MediaStream is a text type that is never complete, e.g. text/event-stream
	MediaStream
)

// ClassifyContentType maps a Content-Type header value to a MediaKind.
func ClassifyContentType(contentType string) MediaKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	}

	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return MediaJSON
	case mediaType == "text/event-stream":
		return MediaStream
	case strings.HasPrefix(mediaType, "text/"):
		return MediaText
	default:
		return MediaOther
	}
}

// CaptureBody interprets raw response bytes according to the declared content type and encoding.
// JSON types are parsed, text types are kept as text, anything else is not captured.
func CaptureBody(contentType, contentEncoding string, data []byte, truncated bool) Capture {
	kind := ClassifyContentType(contentType)
	if kind != MediaJSON && kind != MediaText {
		return NotCaptured{Reason: fmt.Sprintf("content type %q", contentType)}
	}

	decoded, err := decodeContent(contentEncoding, data)
	if err != nil {
		// A truncated compressed stream fails to decode completely; keep nothing
		return NotCaptured{Reason: err.Error()}
	}

	if kind == MediaJSON {
		if truncated {
			return NotCaptured{Reason: "truncated JSON body"}
		}
		var v any
		if err := json.Unmarshal(decoded, &v); err != nil {
			return NotCaptured{Reason: fmt.Sprintf("parsing JSON: %v", err)}
		}
		return Captured{Body: ResponseBody{Kind: BodyJSON, JSON: v}}
	}

	return Captured{Body: ResponseBody{Kind: BodyText, Text: string(decoded), Truncated: truncated}}
}

// captureText interprets a response already decoded to text. Text longer than limit is truncated,
// truncated JSON is kept as text.
func captureText(contentType, text string, limit int64) Capture {
	truncated := limit > 0 && int64(len(text)) > limit
	if truncated {
		text = text[:limit]
	}
	if !truncated && ClassifyContentType(contentType) == MediaJSON {
		var v any
		if err := json.Unmarshal([]byte(text), &v); err == nil {
			return Captured{Body: ResponseBody{Kind: BodyJSON, JSON: v}}
		}
	}
	return Captured{Body: ResponseBody{Kind: BodyText, Text: text, Truncated: truncated}}
}

func decodeContent(contentEncoding string, data []byte) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", contentEncoding, err)
	}
	return decoded, nil
}
