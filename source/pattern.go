package source

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/njyeung/conreel/grid"
	"github.com/njyeung/conreel/pipeline"
)

// PatternChunk is the span of audio produced per audio packet.
const PatternChunk = 20 * time.Millisecond

// Synthetic audio format, matching the pipeline's output format.
const (
	patternRate     = 48000
	patternChannels = 2
	patternLevel    = 0.2
)

var bars = [][3]byte{
	{255, 255, 255},
	{255, 255, 0},
	{0, 255, 255},
	{0, 255, 0},
	{255, 0, 255},
	{255, 0, 0},
	{0, 0, 255},
	{0, 0, 0},
}

// PatternOptions configure a Pattern.
type PatternOptions struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration

	// Tone is the frequency of a sine wave on the audio track. Zero
	// produces no audio.
	Tone float64
}

// Pattern is a synthetic source of scrolling color bars over a vertical
// brightness ramp, with an optional sine tone.
type Pattern struct {
	opts    PatternOptions
	frames  int
	chunks  int
	vpos    int
	apos    int
	target  pipeline.Target
	pix     []byte
	samples []int16
}

// NewPattern returns a pattern source.
func NewPattern(opts PatternOptions) (*Pattern, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return nil, errors.New("pattern fps must be positive")
	}
	if opts.Duration <= 0 {
		return nil, errors.New("pattern duration must be positive")
	}
	p := &Pattern{
		opts:   opts,
		frames: int(math.Ceil(opts.Duration.Seconds() * opts.FPS)),
	}
	if opts.Tone > 0 {
		p.chunks = int((opts.Duration + PatternChunk - 1) / PatternChunk)
	}
	return p, nil
}

// Info implements pipeline.Decoder.
func (p *Pattern) Info() pipeline.MediaInfo {
	return pipeline.MediaInfo{
		Width:    p.opts.Width,
		Height:   p.opts.Height,
		FPS:      p.opts.FPS,
		Duration: p.opts.Duration,
		HasAudio: p.chunks > 0,
	}
}

// Sources implements pipeline.Decoder.
func (p *Pattern) Sources() int { return 1 }

func (p *Pattern) frameTime(k int) time.Duration {
	return time.Duration(math.Round(float64(k) / p.opts.FPS * float64(time.Second)))
}

// ReadPacket implements pipeline.Decoder. Video and audio packets come out
// interleaved in timestamp order.
func (p *Pattern) ReadPacket(int) (pipeline.Packet, error) {
	videoLeft := p.vpos < p.frames
	audioLeft := p.apos < p.chunks
	switch {
	case videoLeft && (!audioLeft || p.frameTime(p.vpos) <= time.Duration(p.apos)*PatternChunk):
		u := &unit{ts: p.frameTime(p.vpos), index: p.vpos}
		p.vpos++
		return u, nil
	case audioLeft:
		u := &unit{ts: time.Duration(p.apos) * PatternChunk, index: p.apos, audio: true}
		p.apos++
		return u, nil
	}
	return nil, io.EOF
}

// Decode implements pipeline.Decoder.
func (p *Pattern) Decode(pkt pipeline.Packet, sink pipeline.Sink) error {
	u, ok := pkt.(*unit)
	if !ok {
		return fmt.Errorf("foreign packet %T: %w", pkt, pipeline.ErrSkip)
	}
	if u.audio {
		return sink.Audio(u.ts, p.tone(u.ts))
	}
	if p.target.Width == 0 {
		return nil
	}
	return sink.Video(u.ts, p.render(u.ts))
}

// render draws the frame at ts. The bars scroll one full width every
// eight seconds.
func (p *Pattern) render(ts time.Duration) grid.Image {
	w, h := p.target.Width, p.target.Height
	bpp := p.target.Format.BytesPerPixel()
	if cap(p.pix) < w*h*bpp {
		p.pix = make([]byte, w*h*bpp)
	}
	p.pix = p.pix[:w*h*bpp]

	shift := int(ts.Seconds() / 8 * float64(w))
	for y := 0; y < h; y++ {
		// brightness falls from full at the top to a quarter at the bottom
		level := 255 - 192*y/max(h-1, 1)
		row := p.pix[y*w*bpp:]
		for x := 0; x < w; x++ {
			c := bars[((x+shift)%w)*len(bars)/w]
			r := byte(int(c[0]) * level / 255)
			g := byte(int(c[1]) * level / 255)
			b := byte(int(c[2]) * level / 255)
			if bpp == 1 {
				row[x] = grid.Luminance(r, g, b)
				continue
			}
			row[3*x], row[3*x+1], row[3*x+2] = r, g, b
		}
	}
	return grid.Image{Pix: p.pix, Stride: w * bpp, Width: w, Height: h, Format: p.target.Format}
}

// tone returns the stereo samples of the audio chunk starting at ts.
func (p *Pattern) tone(ts time.Duration) []int16 {
	n := int(PatternChunk * patternRate / time.Second)
	if cap(p.samples) < n*patternChannels {
		p.samples = make([]int16, n*patternChannels)
	}
	p.samples = p.samples[:n*patternChannels]

	start := int64(math.Round(ts.Seconds() * patternRate))
	for i := 0; i < n; i++ {
		t := float64(start+int64(i)) / patternRate
		v := int16(math.Sin(2*math.Pi*p.opts.Tone*t) * patternLevel * math.MaxInt16)
		p.samples[2*i], p.samples[2*i+1] = v, v
	}
	return p.samples
}

// SetTarget implements pipeline.Decoder.
func (p *Pattern) SetTarget(t pipeline.Target) error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("invalid target %dx%d", t.Width, t.Height)
	}
	p.target = t
	return nil
}

// Seek implements pipeline.Decoder.
func (p *Pattern) Seek(ts time.Duration) error {
	ts = max(ts, 0)
	p.vpos = min(int(ts.Seconds()*p.opts.FPS), p.frames)
	p.apos = min(int(ts/PatternChunk), p.chunks)
	return nil
}

// Close implements io.Closer.
func (p *Pattern) Close() error { return nil }
