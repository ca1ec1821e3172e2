package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays through an oto context. The oto player pulls from the
// sink's buffer through Read.
type OtoSink struct {
	buf     *sampleBuffer
	scratch []int16
	player  *oto.Player
}

// NewOtoSink opens the default output device.
func NewOtoSink(latency time.Duration) (*OtoSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: oto context failed: %w", err)
	}
	<-ready

	s := &OtoSink{buf: newSampleBuffer(bufferSamples(latency))}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// Read implements io.Reader for the oto player. An underrun yields silence
// so the player keeps running.
func (s *OtoSink) Read(p []byte) (int, error) {
	n := len(p) / 2
	if cap(s.scratch) < n {
		s.scratch = make([]int16, n)
	}
	got := s.buf.read(s.scratch[:n])
	clear(s.scratch[got:n])
	for i, v := range s.scratch[:n] {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(v))
	}
	return n * 2, nil
}

// Write implements pipeline.AudioSink.
func (s *OtoSink) Write(ctx context.Context, samples []int16) error {
	return s.buf.write(ctx, samples)
}

// SetPaused implements pipeline.Pauser.
func (s *OtoSink) SetPaused(paused bool) {
	if s.player == nil {
		return
	}
	if paused {
		s.player.Pause()
	} else {
		s.player.Play()
	}
}

// Flush implements pipeline.Flusher.
func (s *OtoSink) Flush() {
	s.buf.flush()
}

// Close stops playback.
func (s *OtoSink) Close() error {
	if s.player == nil {
		return nil
	}
	return s.player.Close()
}
