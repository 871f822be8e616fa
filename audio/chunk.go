package audio

import (
	"sync"
	"time"

	"github.com/mrsingh-rishi/voice-web/queue"
)

// DefaultEncoding is the container format the browser's recorder produces.
const DefaultEncoding = "audio/webm"

// Chunk is one fixed-interval slice of captured audio. Immutable once
// created; owned by the Buffer until consumed into a combined payload.
type Chunk struct {
	Data      []byte
	Timestamp time.Time
}

// Payload is the concatenation of buffered chunks for one network call.
type Payload struct {
	Data     []byte
	Encoding string
}

// Buffer accumulates chunks from the capture device into a bounded FIFO.
// When the limit is exceeded the oldest chunks are evicted, so the buffer
// always holds the most recent sliding window of audio. Dispatch reads the
// combined payload without draining; the window itself bounds memory.
//
// The capture loop appends while the dispatcher reads, so all operations
// take the buffer lock.
type Buffer struct {
	mu       sync.Mutex
	chunks   *queue.Queue[Chunk]
	limit    int
	encoding string
}

// NewBuffer creates a Buffer retaining at most maxChunks chunks.
func NewBuffer(maxChunks int) *Buffer {
	return &Buffer{
		chunks:   queue.New[Chunk](),
		limit:    maxChunks,
		encoding: DefaultEncoding,
	}
}

// AddChunk appends a chunk, evicting from the front until the buffer is at
// or under its limit. Returns the resulting chunk count.
func (b *Buffer) AddChunk(c Chunk) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks.Enqueue(c)
	for b.chunks.Len() > b.limit {
		b.chunks.Dequeue()
	}
	return b.chunks.Len()
}

// ChunkCount returns the number of retained chunks.
func (b *Buffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks.Len()
}

// Clear empties the buffer. Used at session start and stop.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if _, ok := b.chunks.Dequeue(); !ok {
			return
		}
	}
}

// SetLimit changes the retention limit and trims immediately if the buffer
// is over it. The dispatcher halves the limit after a payload rejection and
// restores it on the next success.
func (b *Buffer) SetLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 1 {
		n = 1
	}
	b.limit = n
	for b.chunks.Len() > b.limit {
		b.chunks.Dequeue()
	}
}

// Limit returns the current retention limit.
func (b *Buffer) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// CombinedPayload concatenates all retained chunks, in order, into a single
// payload tagged with the capture encoding. The buffer is left untouched:
// retained chunks give the next call overlapping context, and the
// reconciler strips the duplicated text downstream.
func (b *Buffer) CombinedPayload() Payload {
	b.mu.Lock()
	items := b.chunks.Items()
	b.mu.Unlock()
	size := 0
	for _, c := range items {
		size += len(c.Data)
	}
	data := make([]byte, 0, size)
	for _, c := range items {
		data = append(data, c.Data...)
	}
	return Payload{Data: data, Encoding: b.encoding}
}
