package led

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned by ParseHex and ParseColor for malformed input.
var ErrInvalidColor = errors.New("led: invalid color")

// Color is an RGB color.
type Color struct {
	R, G, B uint8
}

// RGB returns the color with the given components.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string {
	return fmt.Sprintf("r[%d] g[%d] b[%d]", c.R, c.G, c.B)
}

// ParseHex parses "#rrggbb", "rrggbb" or the short form "#rgb".
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ParseColor accepts a hex color or a ColorCode name such as "sky_blue".
func ParseColor(s string) (Color, error) {
	if code, ok := ParseColorCode(s); ok {
		return ColorFromCode(code), nil
	}
	return ParseHex(s)
}

// ColorCode names one of Doly's predefined colors.
type ColorCode uint8

const (
	Black ColorCode = iota
	White
	Gray
	Salmon
	Red
	DarkRed
	Pink
	Orange
	Gold
	Yellow
	Purple
	Magenta
	Lime
	Green
	DarkGreen
	Cyan
	SkyBlue
	Blue
	DarkBlue
	Brown
	colorCodeCount
)

var colorTable = [colorCodeCount]struct {
	name  string
	color Color
}{
	Black:     {"black", RGB(0, 0, 0)},
	White:     {"white", RGB(255, 255, 255)},
	Gray:      {"gray", RGB(128, 128, 128)},
	Salmon:    {"salmon", RGB(250, 128, 114)},
	Red:       {"red", RGB(255, 0, 0)},
	DarkRed:   {"dark_red", RGB(139, 0, 0)},
	Pink:      {"pink", RGB(255, 192, 203)},
	Orange:    {"orange", RGB(255, 165, 0)},
	Gold:      {"gold", RGB(255, 215, 0)},
	Yellow:    {"yellow", RGB(255, 255, 0)},
	Purple:    {"purple", RGB(128, 0, 128)},
	Magenta:   {"magenta", RGB(255, 0, 255)},
	Lime:      {"lime", RGB(0, 255, 0)},
	Green:     {"green", RGB(0, 128, 0)},
	DarkGreen: {"dark_green", RGB(0, 100, 0)},
	Cyan:      {"cyan", RGB(0, 255, 255)},
	SkyBlue:   {"sky_blue", RGB(135, 206, 235)},
	Blue:      {"blue", RGB(0, 0, 255)},
	DarkBlue:  {"dark_blue", RGB(0, 0, 139)},
	Brown:     {"brown", RGB(165, 42, 42)},
}

func (c ColorCode) String() string {
	if c < colorCodeCount {
		return colorTable[c].name
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

// ColorFromCode returns the RGB value of code, black for unknown codes.
func ColorFromCode(code ColorCode) Color {
	if code < colorCodeCount {
		return colorTable[code].color
	}
	return Color{}
}

// ParseColorCode looks up a color by name, ignoring case.
func ParseColorCode(name string) (ColorCode, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, entry := range colorTable {
		if entry.name == name {
			return ColorCode(i), true
		}
	}
	return 0, false
}
