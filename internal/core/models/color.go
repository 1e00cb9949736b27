package models

import (
	"fmt"
	"strings"
)

// Color is one of the fixed sprite palette entries.
type Color uint8

const (
	ColorRed Color = iota
	ColorBlue
	ColorGreen
)

// Palette lists every color in sequencer order.
var Palette = [...]Color{ColorRed, ColorBlue, ColorGreen}

func (c Color) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorBlue:
		return "blue"
	case ColorGreen:
		return "green"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

// RGB returns the 8-bit channels a renderer should paint with.
func (c Color) RGB() (r, g, b uint8) {
	switch c {
	case ColorBlue:
		return 0, 0, 255
	case ColorGreen:
		return 0, 255, 0
	default:
		return 255, 0, 0
	}
}

func (c Color) Valid() bool {
	return c <= ColorGreen
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red":
		return ColorRed, nil
	case "blue":
		return ColorBlue, nil
	case "green":
		return ColorGreen, nil
	default:
		return 0, fmt.Errorf("unknown color %q", s)
	}
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown color %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
