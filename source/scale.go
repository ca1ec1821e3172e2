// Package source provides pipeline decoders that need no FFmpeg: animated
// GIFs and still images, and a synthetic test pattern.
package source

import (
	"image"

	"github.com/njyeung/conreel/grid"
	"github.com/njyeung/conreel/pipeline"
	"golang.org/x/image/draw"
)

// Interpolator returns the x/image/draw scaler for m.
func Interpolator(m pipeline.ScalingMode) draw.Interpolator {
	switch m {
	case pipeline.ScaleNearest:
		return draw.NearestNeighbor
	case pipeline.ScaleFastBilinear:
		return draw.ApproxBiLinear
	case pipeline.ScaleBilinear:
		return draw.BiLinear
	}
	return draw.CatmullRom
}

// scaler scales source images to the current target and packs them into
// the target pixel format. Buffers are reused between calls.
type scaler struct {
	target pipeline.Target
	canvas *image.RGBA
	pix    []byte
}

func (s *scaler) setTarget(t pipeline.Target) {
	s.target = t
	r := image.Rect(0, 0, t.Width, t.Height)
	if s.canvas == nil || s.canvas.Rect != r {
		s.canvas = image.NewRGBA(r)
	}
}

// Scale draws src over black at the target size and returns the packed
// result. The returned image aliases internal buffers.
func (s *scaler) Scale(src image.Image) grid.Image {
	draw.Draw(s.canvas, s.canvas.Rect, image.Black, image.Point{}, draw.Src)
	Interpolator(s.target.Scaling).Scale(s.canvas, s.canvas.Rect, src, src.Bounds(), draw.Over, nil)
	return s.pack()
}

func (s *scaler) pack() grid.Image {
	w, h := s.target.Width, s.target.Height
	bpp := s.target.Format.BytesPerPixel()
	if cap(s.pix) < w*h*bpp {
		s.pix = make([]byte, w*h*bpp)
	}
	s.pix = s.pix[:w*h*bpp]

	for y := 0; y < h; y++ {
		row := s.canvas.Pix[y*s.canvas.Stride:]
		out := s.pix[y*w*bpp:]
		for x := 0; x < w; x++ {
			r, g, b := row[4*x], row[4*x+1], row[4*x+2]
			if bpp == 1 {
				out[x] = grid.Luminance(r, g, b)
				continue
			}
			out[3*x], out[3*x+1], out[3*x+2] = r, g, b
		}
	}
	return grid.Image{Pix: s.pix, Stride: w * bpp, Width: w, Height: h, Format: s.target.Format}
}
