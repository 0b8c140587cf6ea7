package container

import (
	"bytes"
	"sync"
)

// cappedBuffer accumulates a stream up to a byte limit. Writes past the limit
// are counted and discarded so the child never blocks on a full pipe, and a
// truncation flag is kept for diagnostics. Write never returns an error and
// always reports the full chunk as consumed.
type cappedBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       bytes.Buffer
	total     int64
	truncated bool

	// onChunk, if set, receives every chunk as it arrives, before capping.
	onChunk func(p []byte)
}

func newCappedBuffer(limit int, onChunk func(p []byte)) *cappedBuffer {
	return &cappedBuffer{limit: limit, onChunk: onChunk}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.onChunk != nil {
		b.onChunk(p)
	}
	b.total += int64(len(p))

	remaining := b.limit - b.buf.Len()
	switch {
	case remaining <= 0:
		b.truncated = true
	case len(p) > remaining:
		b.buf.Write(p[:remaining])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

// String returns the retained prefix of the stream.
func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Truncated reports whether the byte cap was hit.
func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Total returns the number of bytes the child actually produced.
func (b *cappedBuffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
