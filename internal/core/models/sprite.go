package models

import (
	"errors"
	"fmt"
)

// SpriteID is assigned by the durable store when a sprite is first saved.
// IDs are never reused.
type SpriteID uint64

// Simulation defaults.
const (
	DefaultWidth    = 500
	DefaultHeight   = 500
	DefaultSize     = 10
	DefaultMaxSpeed = 5
)

var ErrInvalidBounds = errors.New("invalid bounds")

// Sprite is a moving colored point. Position changes once per tick; velocity
// magnitude and color are fixed at creation.
type Sprite struct {
	ID    SpriteID `json:"id" yaml:"id"`
	X     int      `json:"x" yaml:"x"`
	Y     int      `json:"y" yaml:"y"`
	DX    int      `json:"dx" yaml:"dx"`
	DY    int      `json:"dy" yaml:"dy"`
	Color Color    `json:"color" yaml:"color"`
}

// Contains reports whether the sprite's position is inside the area a sprite
// of bounds.Size may occupy.
func (s Sprite) Contains(b Bounds) bool {
	return s.X >= 0 && s.X <= b.MaxX() && s.Y >= 0 && s.Y <= b.MaxY()
}

func (s Sprite) String() string {
	return fmt.Sprintf("sprite#%d(%s at %d,%d moving %d,%d)", s.ID, s.Color, s.X, s.Y, s.DX, s.DY)
}

// Bounds is the shared simulation box: window dimensions plus sprite diameter.
type Bounds struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	Size   int `json:"size" yaml:"size"`
}

func DefaultBounds() Bounds {
	return Bounds{Width: DefaultWidth, Height: DefaultHeight, Size: DefaultSize}
}

// MaxX is the largest x a sprite may rest at.
func (b Bounds) MaxX() int { return b.Width - b.Size }

// MaxY is the largest y a sprite may rest at.
func (b Bounds) MaxY() int { return b.Height - b.Size }

func (b Bounds) Validate() error {
	if b.Size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidBounds, b.Size)
	}
	if b.Width <= b.Size || b.Height <= b.Size {
		return fmt.Errorf("%w: %dx%d does not fit size %d", ErrInvalidBounds, b.Width, b.Height, b.Size)
	}
	return nil
}
