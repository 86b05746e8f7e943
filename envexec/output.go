package envexec

import (
	"bytes"
	"sync"
)

// LimitedBuffer keeps at most limit bytes and reports the first overflow.
// Writes never fail so that the copying goroutine keeps draining the pipe.
type LimitedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    Size
	exceeded func()
	over     bool
}

// NewLimitedBuffer creates a buffer calling exceeded once on overflow, a
// zero limit keeps everything
func NewLimitedBuffer(limit Size, exceeded func()) *LimitedBuffer {
	return &LimitedBuffer{limit: limit, exceeded: exceeded}
}

func (b *LimitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if b.limit > 0 {
		remain := int(b.limit) - b.buf.Len()
		if remain < len(p) {
			if remain < 0 {
				remain = 0
			}
			p = p[:remain]
			if !b.over {
				b.over = true
				if b.exceeded != nil {
					b.exceeded()
				}
			}
		}
	}
	b.buf.Write(p)
	return n, nil
}

// Bytes returns a copy of the kept bytes
func (b *LimitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Exceeded reports whether any byte was dropped
func (b *LimitedBuffer) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.over
}
