package pipeline

import "sync"

// AudioQueueSize is the default number of audio buffers.
const AudioQueueSize = 16

// AudioQueue is a ring of sample buffers between OutputStage and the audio
// sink. One slot is kept empty to tell full from empty, so a queue of size n
// holds n-1 buffers.
type AudioQueue struct {
	mu    sync.Mutex
	bufs  [][]int16
	front int
	back  int
}

// NewAudioQueue allocates a ring of size slots.
func NewAudioQueue(size int) *AudioQueue {
	if size < 2 {
		size = 2
	}
	return &AudioQueue{bufs: make([][]int16, size)}
}

// Push copies samples in at the back. It reports false when the queue is full.
func (q *AudioQueue) Push(samples []int16) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := (q.back + 1) % len(q.bufs)
	if next == q.front {
		return false
	}
	q.bufs[q.back] = grow(q.bufs[q.back], len(samples))
	copy(q.bufs[q.back], samples)
	q.back = next
	return true
}

// Pop copies the front buffer into dst, growing it as needed. It reports
// false when the queue is empty.
func (q *AudioQueue) Pop(dst []int16) ([]int16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.front == q.back {
		return dst[:0], false
	}
	src := q.bufs[q.front]
	dst = grow(dst, len(src))
	copy(dst, src)
	q.front = (q.front + 1) % len(q.bufs)
	return dst, true
}

// Len returns the number of queued buffers.
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return (q.back - q.front + len(q.bufs)) % len(q.bufs)
}

// Reset drops every queued buffer. Buffers are kept for reuse.
func (q *AudioQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.front, q.back = 0, 0
}
