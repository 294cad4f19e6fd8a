package main

import (
	"math"
	"math/rand"
)

const (
	CourtWidth   = 1280.0
	CourtHeight  = 680.0
	PaddleWidth  = 12.0
	PaddleHeight = 100.0
	PaddleInset  = 20.0 // gap between court edge and paddle back face
	PaddleSpeed  = 5.0  // pixels/tick
	BallRadius   = 10.0

	BallInitialVX  = 7.0 // pixels/tick
	BallInitialVY  = 5.0
	SpeedIncrement = 0.5  // added to ball speed per paddle hit
	MaxBallSpeed   = 16.0 // hard cap on velocity magnitude

	// Perturbed components are pushed away from zero so neither axis
	// can stall after a hit.
	MinBallVX = 2.0
	MinBallVY = 1.0
)

// Side identifies a paddle, or no paddle at all
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return "none"
}

// Vector2 is a 2D position or velocity
type Vector2 struct {
	X, Y float64
}

// Court holds the playing-field dimensions
type Court struct {
	Width, Height float64
}

// DefaultCourt returns the standard court
func DefaultCourt() Court {
	return Court{Width: CourtWidth, Height: CourtHeight}
}

// Ball is the ball's position and velocity in pixels and pixels/tick
type Ball struct {
	X, Y   float64
	VX, VY float64
	Radius float64
}

// Paddle is one player's paddle plus its movement intent and score
type Paddle struct {
	Y          float64
	Height     float64
	MovingUp   bool
	MovingDown bool
	Score      int
}

// NewBall returns a ball centered on the court with a random serve direction
func NewBall(c Court, rng *rand.Rand) Ball {
	b := Ball{Radius: BallRadius}
	ResetBall(&b, c, rng)
	return b
}

// NewPaddle returns a paddle centered vertically on the court
func NewPaddle(c Court) Paddle {
	return Paddle{
		Y:      c.Height/2 - PaddleHeight/2,
		Height: PaddleHeight,
	}
}

// ResetBall re-centers the ball and gives it a fresh random direction at
// the initial, non-escalated speed. Both axes are always nonzero.
func ResetBall(b *Ball, c Court, rng *rand.Rand) {
	b.X = c.Width / 2
	b.Y = c.Height / 2
	b.VX = BallInitialVX * randSign(rng)
	b.VY = BallInitialVY * randSign(rng)
}

// MovePaddle applies one tick of paddle motion from the intent flags,
// clamped to the court bounds
func MovePaddle(p *Paddle, c Court) {
	if p.MovingUp {
		p.Y -= PaddleSpeed
	}
	if p.MovingDown {
		p.Y += PaddleSpeed
	}
	p.Y = Clamp(p.Y, 0, c.Height-p.Height)
}

// Advance runs one physics tick: integrate the ball, bounce off walls,
// check both paddles, then check scoring. Returns the side that scored,
// or SideNone.
//
// Wall bounces are evaluated before paddle collisions; the paddle checks
// see the already-adjusted ball position. A paddle hit reflects the
// horizontal velocity, clamps the ball just outside the paddle face,
// escalates speed up to the cap and applies a bounded random
// perturbation to both axes.
func Advance(b *Ball, left, right *Paddle, c Court, rng *rand.Rand) Side {
	b.X += b.VX
	b.Y += b.VY

	// Walls: reflect and clamp to the boundary so a deep crossing in one
	// tick cannot tunnel out on the next.
	if b.Y-b.Radius <= 0 {
		b.VY = -b.VY
		b.Y = b.Radius
	} else if b.Y+b.Radius >= c.Height {
		b.VY = -b.VY
		b.Y = c.Height - b.Radius
	}

	// Left paddle, then right, evaluated independently per tick.
	leftFace := PaddleInset + PaddleWidth
	if b.VX < 0 && b.X-b.Radius <= leftFace && b.Y >= left.Y && b.Y <= left.Y+left.Height {
		b.VX = -b.VX
		b.X = leftFace + b.Radius
		speedUp(b)
		perturb(b, rng)
	}

	rightFace := c.Width - PaddleInset - PaddleWidth
	if b.VX > 0 && b.X+b.Radius >= rightFace && b.Y >= right.Y && b.Y <= right.Y+right.Height {
		b.VX = -b.VX
		b.X = rightFace - b.Radius
		speedUp(b)
		perturb(b, rng)
	}

	if b.X < 0 {
		right.Score++
		ResetBall(b, c, rng)
		return SideRight
	}
	if b.X > c.Width {
		left.Score++
		ResetBall(b, c, rng)
		return SideLeft
	}
	return SideNone
}

// speedUp grows the velocity magnitude by a fixed increment, capped
func speedUp(b *Ball) {
	mag := math.Hypot(b.VX, b.VY)
	if mag == 0 || mag >= MaxBallSpeed {
		return
	}
	scale := math.Min(mag+SpeedIncrement, MaxBallSpeed) / mag
	b.VX *= scale
	b.VY *= scale
}

// perturb nudges both axes after a paddle hit: vertical by U(-1,1),
// horizontal scaled by 1.1 or 0.9 at random. Components are clamped
// away from zero and the overall magnitude back under the cap.
func perturb(b *Ball, rng *rand.Rand) {
	b.VY += rng.Float64()*2 - 1
	if rng.Intn(2) == 0 {
		b.VX *= 1.1
	} else {
		b.VX *= 0.9
	}

	if math.Abs(b.VX) < MinBallVX {
		b.VX = math.Copysign(MinBallVX, b.VX)
	}
	if math.Abs(b.VY) < MinBallVY {
		b.VY = math.Copysign(MinBallVY, b.VY)
	}

	mag := math.Hypot(b.VX, b.VY)
	if mag > MaxBallSpeed {
		scale := MaxBallSpeed / mag
		b.VX *= scale
		b.VY *= scale
	}
}

func randSign(rng *rand.Rand) float64 {
	if rng.Intn(2) == 0 {
		return 1
	}
	return -1
}
