package physics

import "github.com/zeusync/spriteserver/internal/core/models"

// Stepper advances one body by a single tick inside bounds.
type Stepper interface {
	Step(pos, vel Vec2, bounds models.Bounds) (Vec2, Vec2)
}

// StepFunc adapts a plain function to Stepper.
type StepFunc func(pos, vel Vec2, bounds models.Bounds) (Vec2, Vec2)

func (f StepFunc) Step(pos, vel Vec2, bounds models.Bounds) (Vec2, Vec2) {
	return f(pos, vel, bounds)
}

// Bounce is the axis-aligned wall bounce used by the sprite world.
var Bounce Stepper = StepFunc(Step)
