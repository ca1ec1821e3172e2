package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	// QueueSize is the default number of frame slots.
	QueueSize = 64

	// QueuePoll is how long Acquire sleeps between checks.
	QueuePoll = 16 * time.Millisecond
)

// FrameQueue is a ring of frame slots shared by the decode, encode and
// output stages. Each stage owns one cursor; the cursor for stage s is the
// next slot that stage expects to find in state s. Handing a slot to the
// next stage is done by storing its new Stage, which is the only
// synchronization between stages.
type FrameQueue struct {
	slots  []Frame
	stages []atomic.Int32

	// cursors are indexed by the Stage their owner waits for:
	// StageFree is the loading cursor, StageLoaded the processing
	// cursor, StageProcessed the drawing cursor.
	cursors  [3]atomic.Int64
	inFlight atomic.Int64
	ended    atomic.Bool

	freeze *atomic.Uint64
	poll   time.Duration
}

// NewFrameQueue allocates a ring of size slots. size must be at least 2.
func NewFrameQueue(size int, poll time.Duration) *FrameQueue {
	if size < 2 {
		size = 2
	}
	if poll <= 0 {
		poll = QueuePoll
	}
	return &FrameQueue{
		slots:  make([]Frame, size),
		stages: make([]atomic.Int32, size),
		poll:   poll,
	}
}

// Size returns the number of slots.
func (q *FrameQueue) Size() int {
	return len(q.slots)
}

// Acquire waits until the slot at the caller's cursor reaches want and
// returns it without advancing the cursor. A FREE slot is only handed out
// while fewer than Size()-1 frames are in flight.
//
// Acquire returns ErrFrozen when a freeze is requested, ErrEndOfStream when
// decoding ended and the caller has consumed everything upstream, or the
// context error.
func (q *FrameQueue) Acquire(ctx context.Context, want Stage) (*Frame, error) {
	for {
		pos := q.cursors[want].Load()
		if Stage(q.stages[pos].Load()) == want &&
			(want != StageFree || q.inFlight.Load() < int64(len(q.slots)-1)) {
			return &q.slots[pos], nil
		}
		if q.freeze != nil && q.freeze.Load() != 0 {
			return nil, ErrFrozen
		}
		if want != StageFree && q.drained(want) {
			return nil, ErrEndOfStream
		}
		if err := sleepCtx(ctx, q.poll); err != nil {
			return nil, err
		}
	}
}

// drained reports whether the producer has stopped for good and the cursor
// for want has caught up with it.
func (q *FrameQueue) drained(want Stage) bool {
	if !q.ended.Load() {
		return false
	}
	pos := q.cursors[want].Load()
	return q.cursors[StageFree].Load() == pos && Stage(q.stages[pos].Load()) == StageFree
}

// Release hands the caller's current slot to the next stage and advances
// the caller's cursor. next is StageLoaded for the decoder, StageProcessed
// for the encoder and StageFree for the output stage.
func (q *FrameQueue) Release(next Stage) {
	from := (next + 2) % 3
	pos := q.cursors[from].Load()

	if next == StageLoaded {
		q.inFlight.Add(1)
	}
	q.stages[pos].Store(int32(next))
	if next == StageFree {
		q.inFlight.Add(-1)
	}
	q.cursors[from].Store((pos + 1) % int64(len(q.slots)))
}

// Reset returns every slot to FREE and every cursor to 0. Slot buffers are
// kept. It must only be called while no stage is touching the queue.
func (q *FrameQueue) Reset() {
	for i := range q.stages {
		q.stages[i].Store(int32(StageFree))
	}
	for i := range q.cursors {
		q.cursors[i].Store(0)
	}
	q.inFlight.Store(0)
	q.ended.Store(false)
}

// MarkEnd records that the decoder will produce no more frames.
func (q *FrameQueue) MarkEnd() {
	q.ended.Store(true)
}

// Ended reports whether MarkEnd was called since the last Reset.
func (q *FrameQueue) Ended() bool {
	return q.ended.Load()
}

// Len returns the number of slots not in the FREE stage.
func (q *FrameQueue) Len() int {
	return int(q.inFlight.Load())
}

// Cursors returns the loading, processing and drawing cursors.
func (q *FrameQueue) Cursors() (loading, processing, drawing int) {
	return int(q.cursors[StageFree].Load()),
		int(q.cursors[StageLoaded].Load()),
		int(q.cursors[StageProcessed].Load())
}

// StageAt returns the stage of slot i.
func (q *FrameQueue) StageAt(i int) Stage {
	return Stage(q.stages[i].Load())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
