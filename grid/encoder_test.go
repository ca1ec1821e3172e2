package grid

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cell struct {
	glyph rune
	code  string
}

// decodeRow splits an encoded row into cells, carrying the last color code
// forward the way a terminal does. It also reports how many codes it saw.
func decodeRow(t *testing.T, row []byte, carry string) ([]cell, int, string) {
	t.Helper()
	var cells []cell
	codes := 0
	for len(row) > 0 {
		if row[0] == 0x1b {
			end := strings.IndexByte(string(row), 'm')
			require.Greater(t, end, 0, "unterminated escape")
			carry = string(row[:end+1])
			row = row[end+1:]
			codes++
			continue
		}
		r, n := utf8.DecodeRune(row)
		cells = append(cells, cell{glyph: r, code: carry})
		row = row[n:]
	}
	return cells, codes, carry
}

func solidRGB(w, h int, colors func(x, y int) [3]uint8) Image {
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := colors(x, y)
			copy(pix[(y*w+x)*3:], c[:])
		}
	}
	return Image{Pix: pix, Stride: w * 3, Width: w, Height: h, Format: RGB24}
}

func TestEncodeRunMerge(t *testing.T) {
	red := [3]uint8{200, 10, 10}
	blue := [3]uint8{10, 10, 200}
	img := solidRGB(10, 1, func(x, _ int) [3]uint8 {
		if x < 5 {
			return red
		}
		return blue
	})

	for _, mode := range []ColorMode{ColorRGB, Color256, Color16} {
		t.Run(mode.String(), func(t *testing.T) {
			enc := NewEncoder(Options{Color: mode}, 1)
			out, offsets := enc.Encode(nil, nil, img)
			require.Len(t, offsets, 2)

			cells, codes, _ := decodeRow(t, out[offsets[0]:offsets[1]], "")
			assert.Equal(t, 2, codes)
			require.Len(t, cells, 10)

			for x := 1; x < 5; x++ {
				assert.Equal(t, cells[0], cells[x])
			}
			for x := 6; x < 10; x++ {
				assert.Equal(t, cells[5], cells[x])
			}
			assert.NotEqual(t, cells[0].code, cells[5].code)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	img := solidRGB(16, 4, func(x, y int) [3]uint8 {
		return [3]uint8{uint8(x * 16), uint8(y * 60), uint8(255 - x*16)}
	})
	enc := NewEncoder(Options{Color: Color256}, 1)
	out, offsets := enc.Encode(nil, nil, img)

	for y := 0; y < img.Height; y++ {
		cells, _, _ := decodeRow(t, out[offsets[y]:offsets[y+1]], "")
		require.Len(t, cells, img.Width)
		for x, c := range cells {
			p := img.Pix[y*img.Stride+x*3:]
			lum := Luminance(p[0], p[1], p[2])
			nr, ng, nb := Normalize(p[0], p[1], p[2])
			want := "\x1b[38;5;" + strconv.Itoa(int(Quantize256(nr, ng, nb))) + "m"
			assert.Equal(t, want, c.code, "cell %d,%d", x, y)
			assert.Equal(t, enc.Options().Charset.Glyph(lum), c.glyph, "cell %d,%d", x, y)
		}
	}
}

func TestEncodeRowOffsets(t *testing.T) {
	img := solidRGB(7, 5, func(x, y int) [3]uint8 { return [3]uint8{uint8(x * 30), 0, uint8(y * 50)} })
	enc := NewEncoder(Options{Color: ColorRGB}, 1)
	out, offsets := enc.Encode(nil, nil, img)

	require.Len(t, offsets, 6)
	assert.Equal(t, 0, offsets[0])
	assert.Equal(t, len(out), offsets[5])
	for y := 0; y < 5; y++ {
		assert.Less(t, offsets[y], offsets[y+1])
		assert.Equal(t, byte(0x1b), out[offsets[y]], "row %d must open with a color code", y)
	}
}

func TestEncodeReusesBuffers(t *testing.T) {
	img := solidRGB(8, 8, func(x, y int) [3]uint8 { return [3]uint8{1, 2, 3} })
	enc := NewEncoder(Options{Color: ColorRGB}, 1)
	out, offsets := enc.Encode(nil, nil, img)
	first := &out[:1][0]

	out, offsets = enc.Encode(out, offsets, img)
	assert.Same(t, first, &out[:1][0])
	assert.Len(t, offsets, 9)
}

func TestEncodeGray(t *testing.T) {
	pix := []byte{0, 64, 128, 255}
	img := Image{Pix: pix, Stride: 4, Width: 4, Height: 1, Format: Gray8}
	cs, err := ParseCharset("#short")
	require.NoError(t, err)

	enc := NewEncoder(Options{Color: ColorGray, Charset: cs}, 1)
	out, _ := enc.Encode(nil, nil, img)
	assert.Equal(t, " -?@", string(out))
}

func TestEncodeProcNone(t *testing.T) {
	img := solidRGB(3, 1, func(x, _ int) [3]uint8 { return [3]uint8{uint8(x * 20), 0, 0} })
	cs, _ := ParseCharset("#short")
	enc := NewEncoder(Options{Color: Color16, Proc: ProcNone, Charset: cs}, 1)
	out, _ := enc.Encode(nil, nil, img)
	cells, _, _ := decodeRow(t, out, "")
	for _, c := range cells {
		assert.Equal(t, '@', c.glyph)
	}
}

func TestEncodeMergeAcrossRows(t *testing.T) {
	black := solidRGB(320/8, 240/16, func(int, int) [3]uint8 { return [3]uint8{} })
	cs, _ := ParseCharset("#short")
	require.Len(t, cs, 11)

	enc := NewEncoder(Options{Color: Color16, Charset: cs, MergeAcrossRows: true}, 1)
	out, _ := enc.Encode(nil, nil, black)
	assert.Equal(t, 1, strings.Count(string(out), "\x1b["))
	assert.Equal(t, "\x1b[30m", string(out[:5]))

	perRow := NewEncoder(Options{Color: Color16, Charset: cs}, 1)
	out, _ = perRow.Encode(nil, nil, black)
	assert.Equal(t, black.Height, strings.Count(string(out), "\x1b["))
}

func TestBrightnessRandomization(t *testing.T) {
	for _, tc := range []struct {
		name   string
		opts   Options
		lo, hi int
	}{
		{"symmetric", Options{Brightness: 40}, 128 - 20, 128 + 20},
		{"decrease", Options{Brightness: -40}, 128 - 40, 128},
		{"proc none decreases", Options{Brightness: 40, Proc: ProcNone}, 128 - 40, 128},
	} {
		t.Run(tc.name, func(t *testing.T) {
			enc := NewEncoder(tc.opts, 7)
			for range 1000 {
				v := int(enc.randomize(128))
				assert.GreaterOrEqual(t, v, tc.lo)
				assert.LessOrEqual(t, v, tc.hi)
			}
		})
	}

	enc := NewEncoder(Options{Brightness: 255}, 3)
	for range 1000 {
		v := enc.randomize(250)
		assert.LessOrEqual(t, int(v), 255)
	}
}

func TestParseCharset(t *testing.T) {
	cs, err := ParseCharset("")
	require.NoError(t, err)
	assert.Equal(t, ' ', cs[0])
	assert.Equal(t, '@', cs.Brightest())

	cs, err = ParseCharset("#blocks")
	require.NoError(t, err)
	assert.Equal(t, '█', cs.Brightest())

	cs, err = ParseCharset("ab")
	require.NoError(t, err)
	assert.Equal(t, 'a', cs.Glyph(127))
	assert.Equal(t, 'b', cs.Glyph(128))

	_, err = ParseCharset("#nope")
	assert.Error(t, err)
}
