package audio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// BeepSink plays through the beep speaker mixer.
type BeepSink struct {
	buf     *sampleBuffer
	scratch []int16
	paused  atomic.Bool
	ctrl    *beep.Ctrl
}

// NewBeepSink initializes the speaker and starts streaming silence until
// samples arrive. latency is both the device buffer and the sink buffer.
func NewBeepSink(latency time.Duration) (*BeepSink, error) {
	sr := beep.SampleRate(SampleRate)
	if err := speaker.Init(sr, sr.N(latency)); err != nil {
		return nil, fmt.Errorf("audio: speaker init failed: %w", err)
	}
	s := newBeepSink(latency)
	speaker.Play(s.ctrl)
	return s, nil
}

func newBeepSink(latency time.Duration) *BeepSink {
	s := &BeepSink{buf: newSampleBuffer(bufferSamples(latency))}
	s.ctrl = &beep.Ctrl{Streamer: beep.StreamerFunc(s.stream)}
	return s
}

// stream fills samples from the buffer, padding with silence on underrun
// and while paused. It never ends the stream.
func (s *BeepSink) stream(samples [][2]float64) (int, bool) {
	if s.paused.Load() {
		clear(samples)
		return len(samples), true
	}
	need := len(samples) * Channels
	if cap(s.scratch) < need {
		s.scratch = make([]int16, need)
	}
	got := s.buf.read(s.scratch[:need]) / Channels
	for i := range got {
		samples[i][0] = float64(s.scratch[2*i]) / 32768
		samples[i][1] = float64(s.scratch[2*i+1]) / 32768
	}
	clear(samples[got:])
	return len(samples), true
}

// Write implements pipeline.AudioSink.
func (s *BeepSink) Write(ctx context.Context, samples []int16) error {
	return s.buf.write(ctx, samples)
}

// SetPaused implements pipeline.Pauser.
func (s *BeepSink) SetPaused(paused bool) {
	s.paused.Store(paused)
}

// Flush implements pipeline.Flusher.
func (s *BeepSink) Flush() {
	s.buf.flush()
}

// Close stops playback.
func (s *BeepSink) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}
