// pkg/entity/entity.go
package entity

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-collider/pkg/physics"
)

// DefaultRadius is the radius given to blobs created without one.
const DefaultRadius = 5.0

// wanderSteps is how many steps a wanderer keeps its heading.
const wanderSteps = 10

// Motion is the movement behaviour of a blob.
type Motion int

const (
	// Bouncer moves at constant velocity and reflects off the world walls.
	Bouncer Motion = iota
	// Wanderer turns its heading by a random angle every few steps, keeping
	// its speed, and stops at walls.
	Wanderer
)

// ParseMotion accepts "bouncer" (or "b") and "wanderer" (or "w").
func ParseMotion(s string) (Motion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bouncer", "b":
		return Bouncer, nil
	case "wanderer", "w":
		return Wanderer, nil
	default:
		return 0, fmt.Errorf("unknown blob motion %q", s)
	}
}

func (m Motion) String() string {
	switch m {
	case Bouncer:
		return "bouncer"
	case Wanderer:
		return "wanderer"
	default:
		return fmt.Sprintf("Motion(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Motion) MarshalText() ([]byte, error) {
	if m != Bouncer && m != Wanderer {
		return nil, fmt.Errorf("unknown blob motion %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Motion) UnmarshalText(text []byte) error {
	parsed, err := ParseMotion(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Blob is a moving disc in the simulated world.
type Blob struct {
	ecs.BasicEntity

	Position physics.Vector2D
	Velocity physics.Vector2D // world units per step
	Radius   float64
	Motion   Motion
	// Marked is set once the blob has collided under the mark policy and
	// stays set.
	Marked bool

	steps int
}

// NewBlob creates a blob at pos moving in a random direction at a random
// speed below one unit per step.
func NewBlob(pos physics.Vector2D, radius float64, motion Motion, rng *rand.Rand) *Blob {
	return &Blob{
		BasicEntity: ecs.NewBasic(),
		Position:    pos,
		Velocity:    randomVelocity(rng),
		Radius:      radius,
		Motion:      motion,
	}
}

// X returns the horizontal position.
func (b *Blob) X() float64 { return b.Position.X }

// Y returns the vertical position.
func (b *Blob) Y() float64 { return b.Position.Y }

// Step moves the blob by dt steps and keeps it inside world.
func (b *Blob) Step(dt float64, world physics.Rect, rng *rand.Rand) {
	switch b.Motion {
	case Wanderer:
		b.wander(dt, world, rng)
	default:
		b.bounce(dt, world)
	}
	b.steps++
}

func (b *Blob) bounce(dt float64, world physics.Rect) {
	b.Position = b.Position.Add(b.Velocity.Scale(dt))

	minX, maxX := b.limits(world.X1, world.X2)
	minY, maxY := b.limits(world.Y1, world.Y2)
	switch {
	case b.Position.X < minX:
		b.Position.X = minX
		b.reflect(physics.Vector2D{X: 1})
	case b.Position.X > maxX:
		b.Position.X = maxX
		b.reflect(physics.Vector2D{X: -1})
	}
	switch {
	case b.Position.Y < minY:
		b.Position.Y = minY
		b.reflect(physics.Vector2D{Y: 1})
	case b.Position.Y > maxY:
		b.Position.Y = maxY
		b.reflect(physics.Vector2D{Y: -1})
	}
}

// reflect turns the velocity back into the world off a wall whose inward
// normal is n. A blob already moving away is left alone.
func (b *Blob) reflect(n physics.Vector2D) {
	if b.Velocity.Dot(n) < 0 {
		b.Velocity = b.Velocity.Reflect(n)
	}
}

func (b *Blob) wander(dt float64, world physics.Rect, rng *rand.Rand) {
	if b.steps%wanderSteps == 0 {
		b.Velocity = b.Velocity.Rotate(randomTurn(rng))
	}
	b.Position = b.Position.Add(b.Velocity.Scale(dt))

	minX, maxX := b.limits(world.X1, world.X2)
	minY, maxY := b.limits(world.Y1, world.Y2)
	b.Position.X = math.Max(minX, math.Min(maxX, b.Position.X))
	b.Position.Y = math.Max(minY, math.Min(maxY, b.Position.Y))
}

// limits returns the range the blob's center may occupy along one axis.
// A blob wider than the world only has to keep its center inside.
func (b *Blob) limits(lo, hi float64) (float64, float64) {
	r := math.Max(b.Radius, 0)
	if hi-lo < 2*r {
		return lo, hi
	}
	return lo + r, hi - r
}

// randomVelocity picks a uniform heading and a speed below one unit per step.
func randomVelocity(rng *rand.Rand) physics.Vector2D {
	return physics.FromAngle(2*math.Pi*uniform(rng), uniform(rng))
}

// randomTurn is a heading change of at most a quarter turn either way.
func randomTurn(rng *rand.Rand) float64 {
	return (uniform(rng) - 0.5) * math.Pi
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}
