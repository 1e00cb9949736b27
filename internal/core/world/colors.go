package world

import (
	"sync"

	"github.com/zeusync/spriteserver/internal/core/models"
)

// ColorSequencer hands out red, blue, green, red, ... Calls are linearized,
// so concurrent creators observe one total order.
type ColorSequencer struct {
	mu sync.Mutex
	i  int
}

func NewColorSequencer() *ColorSequencer {
	return &ColorSequencer{}
}

func (c *ColorSequencer) Next() models.Color {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.i++
	switch c.i {
	case 1:
		return models.ColorRed
	case 2:
		return models.ColorBlue
	case 3:
		c.i = 0
		return models.ColorGreen
	default:
		// Unreachable through Next alone; recover onto the start of the cycle.
		c.i = 1
		return models.ColorRed
	}
}

// Peek returns the color the next call to Next will hand out.
func (c *ColorSequencer) Peek() models.Color {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.i {
	case 1:
		return models.ColorBlue
	case 2:
		return models.ColorGreen
	default:
		return models.ColorRed
	}
}
