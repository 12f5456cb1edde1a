package collector

import (
	"bytes"
	"io"
)

// LimitedBuffer is a buffer that only keeps up to a certain size
// and marks itself as truncated if more was written.
type LimitedBuffer struct {
	*bytes.Buffer
	limit     int
	truncated bool
}

// NewLimitedBuffer creates a new LimitedBuffer with the given size limit.
func NewLimitedBuffer(limit int) *LimitedBuffer {
	return &LimitedBuffer{
		Buffer: new(bytes.Buffer),
		limit:  limit,
	}
}

// Write implements io.Writer. It always reports len(p) as written, so it can be
// used as the sink of an io.TeeReader without failing the read.
func (b *LimitedBuffer) Write(p []byte) (n int, err error) {
	if b.truncated {
		return len(p), nil
	}

	remaining := b.limit - b.Buffer.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}

	if len(p) > remaining {
		_, err = b.Buffer.Write(p[:remaining])
		b.truncated = true
		return len(p), err
	}

	return b.Buffer.Write(p)
}

// ReadFrom copies r into the buffer until EOF, keeping at most the limit.
func (b *LimitedBuffer) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(writerOnly{b}, r)
}

// IsTruncated returns true if the buffer was truncated due to size limit.
func (b *LimitedBuffer) IsTruncated() bool {
	return b.truncated
}

// Reset resets the buffer to be empty and not truncated.
func (b *LimitedBuffer) Reset() {
	b.Buffer.Reset()
	b.truncated = false
}

// Payload returns a copy of the buffered bytes as a Payload
func (b *LimitedBuffer) Payload() *Payload {
	return &Payload{
		Data:      bytes.Clone(b.Buffer.Bytes()),
		Truncated: b.truncated,
	}
}

// writerOnly hides ReadFrom so io.Copy uses Write
type writerOnly struct {
	io.Writer
}
