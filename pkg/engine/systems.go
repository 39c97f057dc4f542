// pkg/engine/systems.go
package engine

import (
	"context"
	"math/rand/v2"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-collider/pkg/collision"
	"github.com/opd-ai/go-collider/pkg/entity"
	"github.com/opd-ai/go-collider/pkg/physics"
)

// MotionSystem steps every blob according to its motion kind
type MotionSystem struct {
	entities []*entity.Blob
	bounds   physics.Rect
	rng      *rand.Rand
}

// NewMotionSystem creates a motion system confined to bounds
func NewMotionSystem(bounds physics.Rect, rng *rand.Rand) *MotionSystem {
	return &MotionSystem{bounds: bounds, rng: rng}
}

// Add starts moving b
func (m *MotionSystem) Add(b *entity.Blob) {
	m.entities = append(m.entities, b)
}

// Remove satisfies the ecs.System interface
func (m *MotionSystem) Remove(basic ecs.BasicEntity) {
	m.entities = removeBlob(m.entities, basic.ID())
}

// Update moves every blob by dt steps
func (m *MotionSystem) Update(dt float32) {
	for _, b := range m.entities {
		b.Step(float64(dt), m.bounds, m.rng)
	}
}

// Priority runs motion before collision detection
func (m *MotionSystem) Priority() int { return 10 }

// radiusOf is the interaction radius handed to the detector
func radiusOf(b *entity.Blob) float64 { return b.Radius }

// detection is the outcome of the collision pass of one tick
type detection struct {
	result  *collision.Result[*entity.Blob]
	removed []*entity.Blob
	err     error
}

// CollisionSystem rebuilds the spatial index over the live blobs every
// update and applies the active policy to the colliders it finds
type CollisionSystem struct {
	entities []*entity.Blob // population order
	detector *collision.Detector[*entity.Blob]
	policy   collision.Policy

	ctx  context.Context
	last detection
}

// NewCollisionSystem creates a collision system using detector
func NewCollisionSystem(detector *collision.Detector[*entity.Blob], policy collision.Policy) *CollisionSystem {
	return &CollisionSystem{detector: detector, policy: policy, ctx: context.Background()}
}

// Add includes b in collision detection
func (c *CollisionSystem) Add(b *entity.Blob) {
	c.entities = append(c.entities, b)
}

// Remove satisfies the ecs.System interface
func (c *CollisionSystem) Remove(basic ecs.BasicEntity) {
	c.entities = removeBlob(c.entities, basic.ID())
}

// Update runs one detection pass. The outcome is read with take.
func (c *CollisionSystem) Update(dt float32) {
	if len(c.entities) == 0 {
		c.last = detection{}
		return
	}

	result, err := c.detector.FindColliders(c.ctx, c.entities, radiusOf)
	if err != nil {
		c.last = detection{err: err}
		return
	}

	live, marked := collision.Apply(c.policy, c.entities, result)
	for _, b := range marked {
		b.Marked = true
	}

	var removed []*entity.Blob
	if len(live) < len(c.entities) {
		removed = result.Colliders
		c.entities = live
	}
	c.last = detection{result: result, removed: removed}
}

// Priority runs collision detection after motion
func (c *CollisionSystem) Priority() int { return 0 }

// prepare sets the context for the next Update
func (c *CollisionSystem) prepare(ctx context.Context) {
	c.ctx = ctx
	c.last = detection{}
}

// take returns and clears the outcome of the last Update
func (c *CollisionSystem) take() detection {
	d := c.last
	c.last = detection{}
	c.ctx = context.Background()
	return d
}

func removeBlob(blobs []*entity.Blob, id uint64) []*entity.Blob {
	for i, b := range blobs {
		if b.ID() == id {
			return append(blobs[:i], blobs[i+1:]...)
		}
	}
	return blobs
}
