package audio

import (
	"sync"
	"time"
)

// Queue is the ordered list of decoded buffers for the current generation
// session. It has a single writer (the chunk pipeline) and any number of
// readers (scheduler, seek, export).
type Queue struct {
	mu         sync.RWMutex
	buffers    []*Buffer
	total      time.Duration
	generation uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append adds buf to the end of the queue and returns the new total
// duration.
func (q *Queue) Append(buf *Buffer) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffers = append(q.buffers, buf)
	q.total = sumDurations(q.buffers)
	return q.total
}

// Reset empties the queue and starts a new generation. Artifacts and
// playback sessions created against an older generation are stale.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffers = nil
	q.total = 0
	q.generation++
}

// Generation returns a counter that changes on every Reset.
func (q *Queue) Generation() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.generation
}

// Len returns the number of buffers.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.buffers)
}

// TotalDuration returns the sum of all buffer durations.
func (q *Queue) TotalDuration() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.total
}

// At returns the buffer at index i.
func (q *Queue) At(i int) *Buffer {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.buffers[i]
}

// Snapshot returns a copy of the buffer list. The buffers themselves are
// shared since they are immutable.
func (q *Queue) Snapshot() []*Buffer {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Buffer, len(q.buffers))
	copy(out, q.buffers)
	return out
}

// Locate maps a logical offset across the whole queue to a buffer index and
// the residual offset inside that buffer. Offsets at or beyond the total
// duration clamp to (Len(), 0) with ok set to false.
func (q *Queue) Locate(offset time.Duration) (index int, intra time.Duration, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Locate(q.buffers, offset)
}

// Locate is the list form of Queue.Locate.
func Locate(buffers []*Buffer, offset time.Duration) (index int, intra time.Duration, ok bool) {
	if offset < 0 {
		offset = 0
	}
	var acc time.Duration
	for i, b := range buffers {
		if acc+b.Duration() > offset {
			return i, offset - acc, true
		}
		acc += b.Duration()
	}
	return len(buffers), 0, false
}

func sumDurations(buffers []*Buffer) time.Duration {
	var total time.Duration
	for _, b := range buffers {
		total += b.Duration()
	}
	return total
}
