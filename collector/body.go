package collector

import (
	"bytes"
	"io"
	"net/http"
)

// clonedBody is the result of reading ahead a response body for capture
type clonedBody struct {
	data      []byte
	truncated bool
}

// cloneResponseBody reads up to limit bytes of resp.Body for capture and replaces
// resp.Body with a reader that yields exactly what the original would have.
func cloneResponseBody(resp *http.Response, limit int64) clonedBody {
	original := resp.Body

	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(original, limit+1))

	resp.Body = &replayBody{
		prefix: bytes.NewReader(buf.Bytes()),
		rest:   original,
		err:    err,
		eof:    err == nil && n <= limit,
	}

	data := buf.Bytes()
	truncated := int64(len(data)) > limit
	if truncated {
		data = data[:limit]
	}
	// A failed read still yields the bytes received so far, flagged as truncated
	return clonedBody{
		data:      bytes.Clone(data),
		truncated: truncated || err != nil,
	}
}

// replayBody replays bytes read ahead from rest, then continues with rest itself.
// A read error that happened during read-ahead is returned at the same position.
type replayBody struct {
	prefix *bytes.Reader
	rest   io.ReadCloser
	err    error
	eof    bool
}

func (b *replayBody) Read(p []byte) (int, error) {
	if b.prefix.Len() > 0 {
		return b.prefix.Read(p)
	}
	if b.err != nil {
		return 0, b.err
	}
	if b.eof {
		return 0, io.EOF
	}
	return b.rest.Read(p)
}

func (b *replayBody) Close() error {
	return b.rest.Close()
}
