package runtime

import (
	"strings"
	"sync"
)

// DefaultCaptureLimit bounds the shared console capture buffer.
const DefaultCaptureLimit = 1 << 20 // 1 MiB

// CaptureBuffer is the process-wide console transcript. Executions append
// their rendered output sequentially; the gateway snapshots it to serve
// reconstructed log blocks to out-of-process viewers. When the limit is
// exceeded the oldest whole lines are dropped.
type CaptureBuffer struct {
	mu    sync.Mutex
	buf   strings.Builder
	limit int
}

// NewCaptureBuffer creates a buffer with the given byte limit (0 means
// DefaultCaptureLimit).
func NewCaptureBuffer(limit int) *CaptureBuffer {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	return &CaptureBuffer{limit: limit}
}

// Write implements io.Writer.
func (c *CaptureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	if c.buf.Len() > c.limit {
		content := c.buf.String()
		// Drop the oldest half, realigned to a line boundary.
		cut := len(content) - c.limit/2
		if nl := strings.IndexByte(content[cut:], '\n'); nl >= 0 {
			cut += nl + 1
		}
		c.buf.Reset()
		c.buf.WriteString(content[cut:])
	}
	return len(p), nil
}

// Snapshot returns the current transcript contents.
func (c *CaptureBuffer) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
