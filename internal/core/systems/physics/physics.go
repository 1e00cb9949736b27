package physics

import "github.com/zeusync/spriteserver/internal/core/models"

// Vec2 is an integer 2D vector used for positions and velocities.
type Vec2 struct{ X, Y int }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Step applies one tick of wall bounce followed by movement.
//
// Every wall check looks at the position the body entered the tick with. A
// triggered check clamps that axis to the wall and reverses the velocity
// component; the (possibly reversed) velocity is then added unconditionally.
// A body that is inside the box but moving outward can therefore finish a
// step up to |v| past the wall. The next step pulls it back.
func Step(pos, vel Vec2, bounds models.Bounds) (Vec2, Vec2) {
	maxX, maxY := bounds.MaxX(), bounds.MaxY()

	if pos.X < 0 && vel.X < 0 {
		pos.X = 0
		vel.X = -vel.X
	}
	if pos.Y < 0 && vel.Y < 0 {
		pos.Y = 0
		vel.Y = -vel.Y
	}
	if pos.X > maxX && vel.X > 0 {
		pos.X = maxX
		vel.X = -vel.X
	}
	if pos.Y > maxY && vel.Y > 0 {
		pos.Y = maxY
		vel.Y = -vel.Y
	}

	return pos.Add(vel), vel
}

// StepSprite applies stepper to a sprite's position and velocity. ID and
// color are carried over untouched.
func StepSprite(stepper Stepper, s models.Sprite, bounds models.Bounds) models.Sprite {
	pos, vel := stepper.Step(Vec2{X: s.X, Y: s.Y}, Vec2{X: s.DX, Y: s.DY}, bounds)
	s.X, s.Y = pos.X, pos.Y
	s.DX, s.DY = vel.X, vel.Y
	return s
}
