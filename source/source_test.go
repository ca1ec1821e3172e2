package source

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"io"
	"testing"
	"time"

	"github.com/njyeung/conreel/grid"
	"github.com/njyeung/conreel/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decoded struct {
	ts      time.Duration
	audio   bool
	img     grid.Image
	samples []int16
}

type collectSink struct {
	units []decoded
}

func (s *collectSink) Video(ts time.Duration, img grid.Image) error {
	img.Pix = append([]byte(nil), img.Pix...)
	s.units = append(s.units, decoded{ts: ts, img: img})
	return nil
}

func (s *collectSink) Audio(ts time.Duration, samples []int16) error {
	s.units = append(s.units, decoded{ts: ts, audio: true, samples: append([]int16(nil), samples...)})
	return nil
}

func drain(t *testing.T, d pipeline.Decoder) *collectSink {
	t.Helper()
	sink := &collectSink{}
	for {
		pkt, err := d.ReadPacket(0)
		if err == io.EOF {
			return sink
		}
		require.NoError(t, err)
		require.NoError(t, d.Decode(pkt, sink))
		pkt.Free()
	}
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func palettedSolid(r image.Rectangle, idx uint8) *image.Paletted {
	p := image.NewPaletted(r, color.Palette{color.Transparent, color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255}})
	for i := range p.Pix {
		p.Pix[i] = idx
	}
	return p
}

func TestFramesTimeline(t *testing.T) {
	red := solid(4, 4, color.RGBA{255, 0, 0, 255})
	blue := solid(4, 4, color.RGBA{0, 0, 255, 255})
	f, err := NewFrames([]image.Image{red, blue}, []time.Duration{100 * time.Millisecond, 50 * time.Millisecond}, 2)
	require.NoError(t, err)

	info := f.Info()
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 300*time.Millisecond, info.Duration)
	assert.False(t, info.HasAudio)

	require.NoError(t, f.SetTarget(pipeline.Target{Width: 2, Height: 2, Format: grid.RGB24}))
	sink := drain(t, f)
	require.Len(t, sink.units, 4)

	var stamps []time.Duration
	for _, u := range sink.units {
		stamps = append(stamps, u.ts)
	}
	assert.Equal(t, []time.Duration{0, 100 * time.Millisecond, 150 * time.Millisecond, 250 * time.Millisecond}, stamps)
	assert.Equal(t, []byte{255, 0, 0}, sink.units[0].img.Pix[:3])
	assert.Equal(t, []byte{0, 0, 255}, sink.units[1].img.Pix[:3])
}

func TestFramesSeekLandsOnVisibleFrame(t *testing.T) {
	img := solid(2, 2, color.White)
	f, err := NewFrames([]image.Image{img, img, img}, []time.Duration{time.Second, time.Second, time.Second}, 1)
	require.NoError(t, err)

	require.NoError(t, f.Seek(1500*time.Millisecond))
	pkt, err := f.ReadPacket(0)
	require.NoError(t, err)
	assert.Equal(t, time.Second, pkt.Timestamp())

	require.NoError(t, f.Seek(time.Hour))
	pkt, err = f.ReadPacket(0)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, pkt.Timestamp())
}

func TestNewFramesRejectsMismatch(t *testing.T) {
	_, err := NewFrames(nil, nil, 1)
	assert.Error(t, err)

	_, err = NewFrames([]image.Image{solid(1, 1, color.Black)}, nil, 1)
	assert.Error(t, err)
}

func TestDecodeGIF(t *testing.T) {
	full := image.Rect(0, 0, 4, 4)
	g := &gif.GIF{
		Image: []*image.Paletted{
			palettedSolid(full, 1),
			palettedSolid(image.Rect(0, 0, 2, 2), 2),
			palettedSolid(image.Rect(2, 2, 4, 4), 2),
		},
		Delay:    []int{5, 0, 10},
		Disposal: []byte{gif.DisposalNone, gif.DisposalPrevious, gif.DisposalNone},
		Config:   image.Config{Width: 4, Height: 4},
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))

	f, err := DecodeGIF(&buf, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0, 50 * time.Millisecond, 150 * time.Millisecond}, f.starts)

	// frame 1 was disposed back to all red before frame 2 was drawn
	last := f.images[2].(*image.RGBA)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, last.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, last.RGBAAt(3, 3))

	second := f.images[1].(*image.RGBA)
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, second.RGBAAt(0, 0))
}

func TestScaleGray(t *testing.T) {
	var s scaler
	s.setTarget(pipeline.Target{Width: 3, Height: 2, Scaling: pipeline.ScaleNearest, Format: grid.Gray8})
	img := s.Scale(solid(6, 4, color.White))
	assert.Equal(t, 3, img.Stride)
	assert.Equal(t, []byte{255, 255, 255, 255, 255, 255}, img.Pix)
}

func TestPatternInterleavesInOrder(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 16, Height: 9, FPS: 25, Duration: time.Second, Tone: 440})
	require.NoError(t, err)
	assert.True(t, p.Info().HasAudio)
	require.NoError(t, p.SetTarget(pipeline.Target{Width: 8, Height: 4, Format: grid.RGB24}))

	sink := drain(t, p)
	var video, audio int
	var last time.Duration
	for _, u := range sink.units {
		assert.GreaterOrEqual(t, u.ts, last)
		last = u.ts
		if u.audio {
			audio++
			assert.Len(t, u.samples, 960*2)
			continue
		}
		video++
		assert.Equal(t, 8*4*3, len(u.img.Pix))
	}
	assert.Equal(t, 25, video)
	assert.Equal(t, 50, audio)
}

func TestPatternSeek(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 16, Height: 9, FPS: 10, Duration: 2 * time.Second})
	require.NoError(t, err)
	assert.False(t, p.Info().HasAudio)

	require.NoError(t, p.Seek(1250*time.Millisecond))
	pkt, err := p.ReadPacket(0)
	require.NoError(t, err)
	assert.Equal(t, 1200*time.Millisecond, pkt.Timestamp())

	require.NoError(t, p.Seek(time.Minute))
	_, err = p.ReadPacket(0)
	assert.Equal(t, io.EOF, err)
}

func TestPatternToneIsContinuous(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 2, Height: 2, FPS: 1, Duration: time.Second, Tone: 1000})
	require.NoError(t, err)

	first := append([]int16(nil), p.tone(0)...)
	second := p.tone(PatternChunk)
	// 1 kHz completes a whole number of cycles per chunk
	assert.InDelta(t, first[0], second[0], 1)
	assert.Equal(t, first[2], first[3])
}
