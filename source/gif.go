package source

import (
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"

	// still image formats for Open
	_ "image/jpeg"
	_ "image/png"
)

// minGIFDelay is the shortest frame delay honored; browsers treat shorter
// delays as unset.
const minGIFDelay = 20 * time.Millisecond

const (
	defaultGIFDelay = 100 * time.Millisecond
	stillDuration   = 5 * time.Second
)

// Open loads a GIF as an animation, or any other supported image as a
// still shown for a few seconds.
func Open(path string, loops int) (*Frames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".gif") {
		return DecodeGIF(f, loops)
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return NewFrames([]image.Image{img}, []time.Duration{stillDuration}, 1)
}

// DecodeGIF reads every frame of a GIF, composited as a browser would show
// it.
func DecodeGIF(r io.Reader, loops int) (*Frames, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	frames := composite(g)
	images := make([]image.Image, len(frames))
	delays := make([]time.Duration, len(frames))
	for i, fr := range frames {
		images[i] = fr
		if i < len(g.Delay) {
			delays[i] = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		if delays[i] < minGIFDelay {
			delays[i] = defaultGIFDelay
		}
	}
	return NewFrames(images, delays, loops)
}

// composite renders each frame onto the logical screen, applying the
// previous frame's disposal method first.
func composite(g *gif.GIF) []*image.RGBA {
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Dx(), b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	out := make([]*image.RGBA, len(g.Image))
	for i, frame := range g.Image {
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var saved *image.RGBA
		if disposal == gif.DisposalPrevious {
			saved = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		out[i] = cloneRGBA(canvas)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return out
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	return cp
}
