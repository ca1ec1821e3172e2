package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/njyeung/conreel/grid"
)

var (
	// ErrEndOfStream is returned by FrameQueue.Acquire once decoding has
	// ended and every produced frame has been consumed.
	ErrEndOfStream = errors.New("end of stream")

	// ErrFrozen is returned by FrameQueue.Acquire when a freeze was
	// requested while the caller was waiting.
	ErrFrozen = errors.New("pipeline frozen")

	// ErrClosed is returned by control calls after the pipeline stopped.
	ErrClosed = errors.New("pipeline closed")

	// ErrSkip marks a decode failure that only loses the current unit.
	ErrSkip = errors.New("unit skipped")
)

// Packet is a demuxed, not yet decoded unit of one source.
type Packet interface {
	Source() int
	Timestamp() time.Duration
	Free()
}

// MediaInfo describes the opened sources.
type MediaInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
	HasAudio bool
}

// Target is the output geometry the decoder scales video to.
type Target struct {
	Width   int
	Height  int
	Scaling ScalingMode
	Format  grid.PixelFormat
}

// Sink receives decoded units from Decoder.Decode. Buffers passed to a Sink
// are only valid for the duration of the call.
type Sink interface {
	Video(ts time.Duration, img grid.Image) error
	Audio(ts time.Duration, samples []int16) error
}

// Decoder produces decoded media from one primary and an optional
// secondary source.
type Decoder interface {
	Info() MediaInfo

	// Sources returns the number of opened sources (1 or 2).
	Sources() int

	// ReadPacket returns the next packet of source src, or io.EOF.
	ReadPacket(src int) (Packet, error)

	// Decode decodes pkt and hands every produced unit to sink. Errors
	// returned by sink are passed through.
	Decode(pkt Packet, sink Sink) error

	// SetTarget changes the geometry of subsequently decoded video.
	SetTarget(t Target) error

	// Seek repositions every source at the closest sync point before ts.
	Seek(ts time.Duration) error
}

// GridSize is the drawable area reported by a Renderer.
type GridSize struct {
	Cols       int
	Rows       int
	CellWidth  int // pixels, 0 when unknown
	CellHeight int
}

// RowRange is a half-open range of grid rows.
type RowRange struct {
	Start int
	End   int
}

// Grid is an encoded frame ready to be blitted.
type Grid struct {
	Data       []byte
	RowOffsets []int
	Cols       int
	Rows       int
	Timestamp  time.Duration
}

// Row returns the encoded bytes of row y.
func (g Grid) Row(y int) []byte {
	return g.Data[g.RowOffsets[y]:g.RowOffsets[y+1]]
}

// Renderer draws encoded grids.
type Renderer interface {
	MeasureGrid() (GridSize, error)
	Draw(g Grid, rows []RowRange) error
}

// AudioSink plays interleaved s16 stereo samples. Write may block; it is
// the pacing mechanism for audio.
type AudioSink interface {
	Write(ctx context.Context, samples []int16) error
}

// Pauser is implemented by sinks that can silence themselves while paused.
type Pauser interface {
	SetPaused(paused bool)
}

// Flusher is implemented by sinks that can drop buffered samples on seek.
type Flusher interface {
	Flush()
}

// Recorder receives pipeline events. The zero implementation is nopRecorder.
type Recorder interface {
	FrameDecoded(audio bool)
	DecodeError()
	FrameEncoded(d time.Duration)
	FrameRendered(late time.Duration)
	Seek()
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) FrameDecoded(bool)           {}
func (nopRecorder) DecodeError()                {}
func (nopRecorder) FrameEncoded(time.Duration)  {}
func (nopRecorder) FrameRendered(time.Duration) {}
func (nopRecorder) Seek()                       {}
func (nopRecorder) QueueDepth(int)              {}

// ScalingMode selects the video scaling algorithm.
type ScalingMode int

const (
	ScaleNearest ScalingMode = iota
	ScaleFastBilinear
	ScaleBilinear
	ScaleBicubic
)

var scalingNames = []string{"nearest", "fast-bilinear", "bilinear", "bicubic"}

func (m ScalingMode) String() string {
	if int(m) < len(scalingNames) {
		return scalingNames[m]
	}
	return fmt.Sprintf("ScalingMode(%d)", int(m))
}

// ParseScalingMode accepts the names printed by ScalingMode.String.
func ParseScalingMode(s string) (ScalingMode, error) {
	for i, n := range scalingNames {
		if n == s {
			return ScalingMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scaling mode %q", s)
}

// SyncMode selects how OutputStage paces video.
type SyncMode int

const (
	// SyncEnabled paces video by the clock. Late frames are drawn, not dropped.
	SyncEnabled SyncMode = iota
	// SyncDrawAll paces video by the clock and draws every frame.
	SyncDrawAll
	// SyncDisabled draws frames as fast as they arrive and skips audio.
	SyncDisabled
)

var syncNames = []string{"enabled", "draw-all", "disabled"}

func (m SyncMode) String() string {
	if int(m) < len(syncNames) {
		return syncNames[m]
	}
	return fmt.Sprintf("SyncMode(%d)", int(m))
}

// ParseSyncMode accepts the names printed by SyncMode.String.
func ParseSyncMode(s string) (SyncMode, error) {
	for i, n := range syncNames {
		if n == s {
			return SyncMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}
