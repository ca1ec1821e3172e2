package pipeline

import (
	"fmt"
	"time"

	"github.com/njyeung/conreel/grid"
)

// Stage is the owner phase of a frame slot.
type Stage int32

const (
	StageFree Stage = iota
	StageLoaded
	StageProcessed
)

func (s Stage) String() string {
	switch s {
	case StageFree:
		return "free"
	case StageLoaded:
		return "loaded"
	case StageProcessed:
		return "processed"
	}
	return fmt.Sprintf("Stage(%d)", int32(s))
}

// Frame is a reusable queue slot. Its buffers grow on demand and are kept
// across playback cycles and seeks.
type Frame struct {
	IsAudio   bool
	Timestamp time.Duration

	// Image holds the scaled pixels. Grid and RowOffsets hold the encoded
	// rows once the frame is processed.
	Image      grid.Image
	Grid       []byte
	RowOffsets []int

	// Samples holds interleaved s16 stereo audio.
	Samples []int16
}

// SampleCount is the number of stereo sample frames held.
func (f *Frame) SampleCount() int {
	return len(f.Samples) / 2
}

func (f *Frame) loadVideo(ts time.Duration, img grid.Image) {
	bpp := img.Format.BytesPerPixel()
	rowLen := img.Width * bpp
	f.IsAudio = false
	f.Timestamp = ts
	f.Image.Pix = grow(f.Image.Pix, rowLen*img.Height)
	for y := 0; y < img.Height; y++ {
		copy(f.Image.Pix[y*rowLen:(y+1)*rowLen], img.Pix[y*img.Stride:])
	}
	f.Image.Stride = rowLen
	f.Image.Width = img.Width
	f.Image.Height = img.Height
	f.Image.Format = img.Format
}

func (f *Frame) loadAudio(ts time.Duration, samples []int16) {
	f.IsAudio = true
	f.Timestamp = ts
	f.Samples = grow(f.Samples, len(samples))
	copy(f.Samples, samples)
}

func (f *Frame) grid() Grid {
	return Grid{
		Data:       f.Grid,
		RowOffsets: f.RowOffsets,
		Cols:       f.Image.Width,
		Rows:       f.Image.Height,
		Timestamp:  f.Timestamp,
	}
}

// grow returns buf resized to n, reallocating only when capacity is short.
func grow[T any](buf []T, n int) []T {
	if cap(buf) < n {
		return make([]T, n, n+n/4)
	}
	return buf[:n]
}
