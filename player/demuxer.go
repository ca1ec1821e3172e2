package player

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
)

// Demuxer opens one input and reads its packets.
type Demuxer struct {
	url         string
	formatCtx   *astiav.FormatContext
	videoStream *astiav.Stream
	audioStream *astiav.Stream

	mu     sync.Mutex
	closed bool
}

// NewDemuxer opens url and locates its first video and audio streams. An
// input with neither is an error.
func NewDemuxer(url string) (*Demuxer, error) {
	d := &Demuxer{url: url}

	d.formatCtx = astiav.AllocFormatContext()
	if d.formatCtx == nil {
		return nil, setupErr("avformat_alloc_context", "failed to allocate format context")
	}

	if err := d.formatCtx.OpenInput(url, nil, nil); err != nil {
		d.formatCtx.Free()
		return nil, setupErr("avformat_open_input", "failed to open input %q: %w", url, err)
	}

	if err := d.formatCtx.FindStreamInfo(nil); err != nil {
		d.Close()
		return nil, setupErr("avformat_find_stream_info", "failed to find stream info: %w", err)
	}

	for _, stream := range d.formatCtx.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.videoStream == nil {
				d.videoStream = stream
			}
		case astiav.MediaTypeAudio:
			if d.audioStream == nil {
				d.audioStream = stream
			}
		}
	}

	if d.videoStream == nil && d.audioStream == nil {
		d.Close()
		return nil, setupErr("av_find_best_stream", "no audio or video stream in %q", url)
	}
	return d, nil
}

// VideoStream returns the video stream, or nil.
func (d *Demuxer) VideoStream() *astiav.Stream {
	return d.videoStream
}

// AudioStream returns the audio stream, or nil.
func (d *Demuxer) AudioStream() *astiav.Stream {
	return d.audioStream
}

// FrameRate returns the average frame rate of the video stream, or 0.
func (d *Demuxer) FrameRate() float64 {
	if d.videoStream == nil {
		return 0
	}
	r := d.videoStream.AvgFrameRate()
	if r.Den() == 0 {
		return 0
	}
	return float64(r.Num()) / float64(r.Den())
}

// Duration returns the container duration, or 0 when unknown.
func (d *Demuxer) Duration() time.Duration {
	us := d.formatCtx.Duration()
	if us <= 0 {
		return 0
	}
	return time.Duration(us) * time.Microsecond
}

// ReadPacket reads the next packet of any stream. It returns io.EOF at
// the end of the input.
func (d *Demuxer) ReadPacket() (*astiav.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("demuxer closed")
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		return nil, fmt.Errorf("failed to allocate packet")
	}
	if err := d.formatCtx.ReadFrame(pkt); err != nil {
		pkt.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return pkt, nil
}

// Seek moves to the closest keyframe at or before ts.
func (d *Demuxer) Seek(ts time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("demuxer closed")
	}
	if err := d.formatCtx.SeekFrame(-1, ts.Microseconds(), astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("failed to seek %q to %s: %w", d.url, ts, err)
	}
	return nil
}

// Close releases the input.
func (d *Demuxer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	if d.formatCtx != nil {
		d.formatCtx.CloseInput()
		d.formatCtx.Free()
		d.formatCtx = nil
	}
}
