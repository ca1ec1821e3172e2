// Package audio plays the interleaved s16 stereo samples produced by the
// pipeline on the system's audio device.
package audio

import (
	"context"
	"sync"
	"time"
)

const (
	// SampleRate is the rate every sink is opened at.
	SampleRate = 48000
	// Channels is the interleaved channel count.
	Channels = 2

	writePoll = 5 * time.Millisecond
)

// sampleBuffer is a bounded FIFO of interleaved samples between a blocking
// writer and a device callback that must never block.
type sampleBuffer struct {
	mu    sync.Mutex
	data  []int16
	start int
	n     int
	space chan struct{}
}

func newSampleBuffer(capacity int) *sampleBuffer {
	return &sampleBuffer{
		data:  make([]int16, capacity),
		space: make(chan struct{}, 1),
	}
}

// write appends samples, blocking while the buffer is full.
func (b *sampleBuffer) write(ctx context.Context, samples []int16) error {
	for len(samples) > 0 {
		b.mu.Lock()
		free := len(b.data) - b.n
		k := min(free, len(samples))
		end := (b.start + b.n) % len(b.data)
		for i := range k {
			b.data[(end+i)%len(b.data)] = samples[i]
		}
		b.n += k
		b.mu.Unlock()

		samples = samples[k:]
		if len(samples) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.space:
		case <-time.After(writePoll):
		}
	}
	return nil
}

// read moves up to len(dst) samples into dst and returns the count.
func (b *sampleBuffer) read(dst []int16) int {
	b.mu.Lock()
	k := min(len(dst), b.n)
	for i := range k {
		dst[i] = b.data[(b.start+i)%len(b.data)]
	}
	b.start = (b.start + k) % len(b.data)
	b.n -= k
	b.mu.Unlock()

	if k > 0 {
		select {
		case b.space <- struct{}{}:
		default:
		}
	}
	return k
}

// flush drops every buffered sample.
func (b *sampleBuffer) flush() {
	b.mu.Lock()
	b.start, b.n = 0, 0
	b.mu.Unlock()
	select {
	case b.space <- struct{}{}:
	default:
	}
}

func (b *sampleBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// bufferSamples returns the sample count holding d of stereo audio.
func bufferSamples(d time.Duration) int {
	return int(int64(SampleRate)*int64(d)/int64(time.Second)) * Channels
}
