package grid

// consoleColors16 is the reference table for the 16-color palette, in
// console attribute order (bit 0 blue, bit 1 green, bit 2 red, bit 3 bright).
var consoleColors16 = [16][3]uint8{
	{12, 12, 12}, {0, 55, 218}, {19, 161, 14}, {58, 150, 221},
	{197, 15, 31}, {136, 23, 152}, {193, 156, 0}, {204, 204, 204},
	{118, 118, 118}, {59, 120, 255}, {22, 198, 12}, {97, 214, 214},
	{231, 72, 86}, {180, 0, 158}, {249, 241, 165}, {242, 242, 242},
}

// Quantize16 returns the index of the nearest palette entry by squared
// euclidean distance. Ties resolve to the lower index.
func Quantize16(r, g, b uint8) uint8 {
	best := uint8(0)
	bestDist := -1
	for i, c := range consoleColors16 {
		dr := int(r) - int(c[0])
		dg := int(g) - int(c[1])
		db := int(b) - int(c[2])
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best = uint8(i)
			bestDist = d
		}
	}
	return best
}

// SGR16 converts a Quantize16 index to its ANSI foreground code (30-37, 90-97).
// Console attribute order swaps the red and blue bits relative to ANSI.
func SGR16(c uint8) int {
	color := int(c&0b1010) | int((c&4)>>2) | int((c&1)<<2)
	if c > 7 {
		return color + 82
	}
	return color + 30
}

// grayTolerance is the max channel spread still treated as gray.
const grayTolerance = 8

// Quantize256 maps a color onto the xterm 256-color palette: the 6x6x6 cube
// (16-231) by per-channel rounding, or the 24-step gray ramp (232-255) when
// the channels are within grayTolerance of each other.
func Quantize256(r, g, b uint8) uint8 {
	hi := max(r, g, b)
	lo := min(r, g, b)
	if hi-lo <= grayTolerance {
		avg := (int(r) + int(g) + int(b)) / 3
		switch {
		case avg < 8:
			return 16
		case avg > 246:
			return 231
		}
		// ramp levels are 8, 18, ..., 238
		step := (avg - 8 + 5) / 10
		if step > 23 {
			step = 23
		}
		return uint8(232 + step)
	}
	return uint8(16 + 36*cubeLevel(r) + 6*cubeLevel(g) + cubeLevel(b))
}

func cubeLevel(v uint8) int {
	return (int(v)*5 + 127) / 255
}

// Luminance is the Rec. 601 luma of an RGB triple.
func Luminance(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}

// Normalize scales the color so its dominant channel becomes 255.
// Black stays black.
func Normalize(r, g, b uint8) (uint8, uint8, uint8) {
	m := int(max(r, g, b))
	if m == 0 || m == 255 {
		return r, g, b
	}
	return uint8(int(r) * 255 / m), uint8(int(g) * 255 / m), uint8(int(b) * 255 / m)
}
