package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/njyeung/conreel/pipeline"
)

// unit is a packet of a synthetic source. Free is a no-op.
type unit struct {
	ts    time.Duration
	index int
	audio bool
}

func (u *unit) Source() int              { return 0 }
func (u *unit) Timestamp() time.Duration { return u.ts }
func (u *unit) Free()                    {}

// Frames plays a fixed list of images, each shown for its delay.
type Frames struct {
	images []image.Image
	starts []time.Duration
	total  time.Duration
	pos    int
	scaler scaler
}

// NewFrames returns a decoder for images. delays[i] is how long image i is
// shown; loops repeats the whole list, 1 meaning play once.
func NewFrames(images []image.Image, delays []time.Duration, loops int) (*Frames, error) {
	if len(images) == 0 {
		return nil, errors.New("no frames")
	}
	if len(delays) != len(images) {
		return nil, fmt.Errorf("%d frames but %d delays", len(images), len(delays))
	}
	loops = max(loops, 1)

	f := &Frames{}
	for range loops {
		for i, img := range images {
			f.images = append(f.images, img)
			f.starts = append(f.starts, f.total)
			f.total += delays[i]
		}
	}
	return f, nil
}

// Info implements pipeline.Decoder.
func (f *Frames) Info() pipeline.MediaInfo {
	b := f.images[0].Bounds()
	fps := 0.0
	if f.total > 0 {
		fps = float64(len(f.images)) / f.total.Seconds()
	}
	return pipeline.MediaInfo{Width: b.Dx(), Height: b.Dy(), FPS: fps, Duration: f.total}
}

// Sources implements pipeline.Decoder.
func (f *Frames) Sources() int { return 1 }

// ReadPacket implements pipeline.Decoder.
func (f *Frames) ReadPacket(int) (pipeline.Packet, error) {
	if f.pos >= len(f.images) {
		return nil, io.EOF
	}
	u := &unit{ts: f.starts[f.pos], index: f.pos}
	f.pos++
	return u, nil
}

// Decode implements pipeline.Decoder.
func (f *Frames) Decode(p pipeline.Packet, sink pipeline.Sink) error {
	u, ok := p.(*unit)
	if !ok || u.index >= len(f.images) {
		return fmt.Errorf("foreign packet %T: %w", p, pipeline.ErrSkip)
	}
	if f.scaler.canvas == nil {
		return nil
	}
	return sink.Video(u.ts, f.scaler.Scale(f.images[u.index]))
}

// SetTarget implements pipeline.Decoder.
func (f *Frames) SetTarget(t pipeline.Target) error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("invalid target %dx%d", t.Width, t.Height)
	}
	f.scaler.setTarget(t)
	return nil
}

// Seek implements pipeline.Decoder. It lands on the frame on screen at ts.
func (f *Frames) Seek(ts time.Duration) error {
	f.pos = 0
	for i, s := range f.starts {
		if s > ts {
			break
		}
		f.pos = i
	}
	return nil
}

// Close implements io.Closer.
func (f *Frames) Close() error { return nil }
