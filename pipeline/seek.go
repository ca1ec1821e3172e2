package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// SeekController freezes the three stages, resets the queues and
// repositions the decoder.
type SeekController struct {
	mu     sync.Mutex
	state  *State
	decode *DecodeStage
	sink   AudioSink
	done   <-chan struct{}
	log    *log.Logger
	rec    Recorder
}

// Seek moves playback to ts. It returns once the stages are running again
// from an empty queue, or ErrClosed if the pipeline stopped meanwhile.
func (c *SeekController) Seek(ctx context.Context, ts time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts = max(ts, 0)
	c.state.target.Store(int64(ts))
	defer c.state.target.Store(-1)

	gen := c.state.requestFreeze()
	defer c.state.releaseFreeze()

	for !c.state.AllAcked() {
		select {
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(freezePoll):
		}
	}
	c.log.Debug("stages frozen", "gen", gen, "ts", ts)

	c.state.Queue.Reset()
	c.state.Audio.Reset()
	if f, ok := c.sink.(Flusher); ok {
		f.Flush()
	}
	if err := c.decode.seek(ts); err != nil {
		return fmt.Errorf("seek to %s: %w", ts, err)
	}
	c.state.setPosition(ts)
	c.rec.Seek()
	return nil
}
