package xhr

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OpenOption configures a request in Open
type OpenOption func(*openConfig)

type openConfig struct {
	ctx      context.Context
	timeout  time.Duration
	user     string
	password string
}

// WithContext binds the exchange to ctx. Cancelling ctx aborts the request.
func WithContext(ctx context.Context) OpenOption {
	return func(c *openConfig) {
		c.ctx = ctx
	}
}

// WithTimeout fires "timeout" if the exchange does not finish within d
func WithTimeout(d time.Duration) OpenOption {
	return func(c *openConfig) {
		c.timeout = d
	}
}

// WithBasicAuth sets basic auth credentials for the request
func WithBasicAuth(user, password string) OpenOption {
	return func(c *openConfig) {
		c.user = user
		c.password = password
	}
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// statusText strips the code from a status line like "404 Not Found"
func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text, ok := strings.CutPrefix(resp.Status, code+" "); ok {
		return text
	}
	if resp.Status != "" && resp.Status != code {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}
