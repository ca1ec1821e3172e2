package grid

import (
	"fmt"
	"strings"
)

// Charset is a brightness ramp ordered from the darkest glyph to the brightest.
type Charset []rune

// DefaultCharset is the name of the ramp used when none is configured.
const DefaultCharset = "#long"

var namedCharsets = map[string]string{
	"#long":         " .'`^\",:;Il!i><~+_-?][}{1)(|\\/tfjrxnuvczXYUJCLQ0OZmwqpdbkhao*#MW&8%B$@",
	"#short":        " .-+*?#M&%@",
	"#2":            " *",
	"#blocks":       " ░▒▓█",
	"#outline":      " ·•●",
	"#bold-outline": " ▪■█",
}

// CharsetNames lists the built-in ramps.
func CharsetNames() []string {
	return []string{"#long", "#short", "#2", "#blocks", "#outline", "#bold-outline"}
}

// ParseCharset resolves a built-in ramp by name, or uses s literally.
func ParseCharset(s string) (Charset, error) {
	if s == "" {
		s = DefaultCharset
	}
	if strings.HasPrefix(s, "#") && len(s) > 1 {
		named, ok := namedCharsets[s]
		if !ok {
			return nil, fmt.Errorf("unknown charset %q", s)
		}
		s = named
	}
	cs := Charset([]rune(s))
	if len(cs) == 0 {
		return nil, fmt.Errorf("charset is empty")
	}
	return cs, nil
}

// Glyph maps a luminance value onto the ramp.
func (c Charset) Glyph(lum uint8) rune {
	return c[int(lum)*len(c)/256]
}

// Brightest returns the last glyph of the ramp.
func (c Charset) Brightest() rune {
	return c[len(c)-1]
}
