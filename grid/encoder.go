package grid

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"unicode/utf8"
)

// ColorMode selects the color depth of the emitted stream.
type ColorMode int

const (
	ColorRGB ColorMode = iota
	Color256
	Color16
	ColorGray
)

var colorModeNames = []string{"rgb", "256", "16", "gray"}

func (m ColorMode) String() string {
	if int(m) < len(colorModeNames) {
		return colorModeNames[m]
	}
	return fmt.Sprintf("ColorMode(%d)", int(m))
}

// ParseColorMode accepts the names printed by ColorMode.String.
func ParseColorMode(s string) (ColorMode, error) {
	for i, n := range colorModeNames {
		if n == s {
			return ColorMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown color mode %q", s)
}

// ColorProc selects how a pixel is split into glyph and color.
type ColorProc int

const (
	// ProcBoth normalizes the color to full brightness and carries the
	// luminance in the glyph.
	ProcBoth ColorProc = iota
	// ProcCharOnly keeps the raw color and picks the glyph by luminance.
	ProcCharOnly
	// ProcNone draws every cell with the brightest glyph.
	ProcNone
)

var colorProcNames = []string{"both", "char-only", "none"}

func (p ColorProc) String() string {
	if int(p) < len(colorProcNames) {
		return colorProcNames[p]
	}
	return fmt.Sprintf("ColorProc(%d)", int(p))
}

// ParseColorProc accepts the names printed by ColorProc.String.
func ParseColorProc(s string) (ColorProc, error) {
	for i, n := range colorProcNames {
		if n == s {
			return ColorProc(i), nil
		}
	}
	return 0, fmt.Errorf("unknown color processing mode %q", s)
}

// PixelFormat describes the layout of Image.Pix.
type PixelFormat int

const (
	RGB24 PixelFormat = iota
	Gray8
)

// BytesPerPixel returns the pixel size for the format.
func (f PixelFormat) BytesPerPixel() int {
	if f == Gray8 {
		return 1
	}
	return 3
}

// Image is a scaled source frame, one pixel per grid cell.
type Image struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
	Format PixelFormat
}

// Options configure an Encoder.
type Options struct {
	Color   ColorMode
	Proc    ColorProc
	Charset Charset

	// Brightness enables luminance randomization. Positive values add an
	// offset in [-v/2, v/2], negative values subtract up to |v|.
	Brightness int

	// MergeAcrossRows keeps the run-merge state from one row to the next.
	// Only valid when rows are always written in order from row 0.
	MergeAcrossRows bool
}

// Encoder turns scaled images into escape-coded glyph rows. An Encoder is
// owned by a single goroutine.
type Encoder struct {
	opts Options
	rng  *rand.Rand
}

// NewEncoder returns an encoder. seed drives brightness randomization only.
func NewEncoder(opts Options, seed uint64) *Encoder {
	if len(opts.Charset) == 0 {
		opts.Charset, _ = ParseCharset(DefaultCharset)
	}
	opts.Brightness = max(-255, min(255, opts.Brightness))
	return &Encoder{
		opts: opts,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Options returns the encoder configuration.
func (e *Encoder) Options() Options {
	return e.opts
}

// MaxCellBytes is an upper bound on the bytes a single cell can produce.
func (e *Encoder) MaxCellBytes() int {
	code := 0
	switch e.opts.Color {
	case ColorRGB:
		code = len("\x1b[38;2;255;255;255m")
	case Color256:
		code = len("\x1b[38;5;255m")
	case Color16:
		code = len("\x1b[97m")
	}
	return code + utf8.UTFMax
}

const noColor = -1

// Encode writes the glyph stream for img into dst and the row offset table
// into offsets, reusing their backing arrays. offsets has Height+1 entries:
// row i occupies dst[offsets[i]:offsets[i+1]]. Rows carry no line breaks.
func (e *Encoder) Encode(dst []byte, offsets []int, img Image) ([]byte, []int) {
	need := img.Width * img.Height * e.MaxCellBytes()
	if cap(dst) < need {
		dst = make([]byte, 0, need)
	}
	dst = dst[:0]
	if cap(offsets) < img.Height+1 {
		offsets = make([]int, img.Height+1)
	}
	offsets = offsets[:img.Height+1]

	bpp := img.Format.BytesPerPixel()
	prev := noColor
	for y := 0; y < img.Height; y++ {
		offsets[y] = len(dst)
		if !e.opts.MergeAcrossRows {
			prev = noColor
		}
		row := img.Pix[y*img.Stride:]
		for x := 0; x < img.Width; x++ {
			var r, g, b uint8
			if bpp == 1 {
				r = row[x]
				g, b = r, r
			} else {
				p := row[x*3 : x*3+3]
				r, g, b = p[0], p[1], p[2]
			}
			var glyph rune
			dst, glyph, prev = e.cell(dst, r, g, b, prev)
			dst = utf8.AppendRune(dst, glyph)
		}
	}
	offsets[img.Height] = len(dst)
	return dst, offsets
}

// cell appends the color code for one pixel when it differs from prev and
// returns the glyph to draw.
func (e *Encoder) cell(dst []byte, r, g, b uint8, prev int) ([]byte, rune, int) {
	var lum uint8
	switch {
	case e.opts.Color == ColorGray:
		lum = Luminance(r, g, b)
	case e.opts.Proc == ProcNone:
		lum = 255
	case e.opts.Proc == ProcCharOnly:
		lum = Luminance(r, g, b)
	default:
		lum = Luminance(r, g, b)
		r, g, b = Normalize(r, g, b)
	}
	if e.opts.Brightness != 0 {
		lum = e.randomize(lum)
	}
	glyph := e.opts.Charset.Glyph(lum)

	switch e.opts.Color {
	case ColorRGB:
		key := int(r)<<16 | int(g)<<8 | int(b)
		if key != prev {
			dst = append(dst, "\x1b[38;2;"...)
			dst = strconv.AppendInt(dst, int64(r), 10)
			dst = append(dst, ';')
			dst = strconv.AppendInt(dst, int64(g), 10)
			dst = append(dst, ';')
			dst = strconv.AppendInt(dst, int64(b), 10)
			dst = append(dst, 'm')
		}
		return dst, glyph, key
	case Color256:
		key := int(Quantize256(r, g, b))
		if key != prev {
			dst = append(dst, "\x1b[38;5;"...)
			dst = strconv.AppendInt(dst, int64(key), 10)
			dst = append(dst, 'm')
		}
		return dst, glyph, key
	case Color16:
		key := int(Quantize16(r, g, b))
		if key != prev {
			dst = append(dst, "\x1b["...)
			dst = strconv.AppendInt(dst, int64(SGR16(uint8(key))), 10)
			dst = append(dst, 'm')
		}
		return dst, glyph, key
	}
	return dst, glyph, prev
}

func (e *Encoder) randomize(lum uint8) uint8 {
	v := e.opts.Brightness
	var off int
	if v < 0 || e.opts.Proc == ProcNone {
		n := v
		if n < 0 {
			n = -n
		}
		off = -e.rng.IntN(n + 1)
	} else {
		half := v / 2
		off = e.rng.IntN(2*half+1) - half
	}
	return uint8(max(0, min(255, int(lum)+off)))
}
