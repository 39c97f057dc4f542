// pkg/physics/geometry.go
package physics

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Rect is a closed axis-aligned rectangle from (X1, Y1) to (X2, Y2).
// Y grows downward, so Y1 is the top edge.
type Rect struct {
	X1, Y1 float64
	X2, Y2 float64
}

// NewRect returns the rectangle covering a width x height area anchored at the origin.
func NewRect(width, height float64) Rect {
	return Rect{X1: 0, Y1: 0, X2: width, Y2: height}
}

// Valid reports whether the corners are ordered and finite.
func (r Rect) Valid() bool {
	for _, v := range []float64{r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.X1 <= r.X2 && r.Y1 <= r.Y2
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return r.X1 <= x && x <= r.X2 && r.Y1 <= y && y <= r.Y2
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", r.X1, r.Y1, r.X2, r.Y2)
}

// PointInCircle reports whether (px, py) is within distance r of (cx, cy).
// A negative radius contains nothing.
func PointInCircle(px, py, cx, cy, r float64) bool {
	if r < 0 {
		return false
	}
	dx, dy := px-cx, py-cy
	return dx*dx+dy*dy <= r*r
}

// CircleIntersectsRect reports whether the circle centered at (cx, cy) with
// radius r overlaps the closed rectangle rect.
func CircleIntersectsRect(cx, cy, r float64, rect Rect) bool {
	if r < 0 {
		return false
	}
	// closest point of the rectangle to the circle center
	nx := math.Max(rect.X1, math.Min(cx, rect.X2))
	ny := math.Max(rect.Y1, math.Min(cy, rect.Y2))
	dx, dy := cx-nx, cy-ny
	return dx*dx+dy*dy <= r*r
}

// ProbeStats is a point-in-time copy of a Probe's counters.
type ProbeStats struct {
	CircleRectTests    int64 `json:"circleRectTests"`
	PointInCircleTests int64 `json:"pointInCircleTests"`
}

// Add returns the element-wise sum of two snapshots.
func (s ProbeStats) Add(other ProbeStats) ProbeStats {
	return ProbeStats{
		CircleRectTests:    s.CircleRectTests + other.CircleRectTests,
		PointInCircleTests: s.PointInCircleTests + other.PointInCircleTests,
	}
}

// Probe counts calls to the geometry predicates. It makes the cost of a
// range query observable. A nil *Probe is usable and counts nothing.
// Counters are atomic; a probe may be shared by concurrent queries.
type Probe struct {
	circleRect    atomic.Int64
	pointInCircle atomic.Int64
}

// NewProbe returns a probe with zeroed counters.
func NewProbe() *Probe {
	return &Probe{}
}

// PointInCircle counts the call and delegates to PointInCircle.
func (p *Probe) PointInCircle(px, py, cx, cy, r float64) bool {
	if p != nil {
		p.pointInCircle.Add(1)
	}
	return PointInCircle(px, py, cx, cy, r)
}

// CircleIntersectsRect counts the call and delegates to CircleIntersectsRect.
func (p *Probe) CircleIntersectsRect(cx, cy, r float64, rect Rect) bool {
	if p != nil {
		p.circleRect.Add(1)
	}
	return CircleIntersectsRect(cx, cy, r, rect)
}

// CircleRectTests returns the number of circle-rectangle tests so far.
func (p *Probe) CircleRectTests() int64 {
	if p == nil {
		return 0
	}
	return p.circleRect.Load()
}

// PointInCircleTests returns the number of point-in-circle tests so far.
func (p *Probe) PointInCircleTests() int64 {
	if p == nil {
		return 0
	}
	return p.pointInCircle.Load()
}

// Snapshot returns both counters.
func (p *Probe) Snapshot() ProbeStats {
	return ProbeStats{
		CircleRectTests:    p.CircleRectTests(),
		PointInCircleTests: p.PointInCircleTests(),
	}
}

// Reset zeroes both counters.
func (p *Probe) Reset() {
	if p == nil {
		return
	}
	p.circleRect.Store(0)
	p.pointInCircle.Store(0)
}

// Record adds a snapshot taken elsewhere to the counters.
func (p *Probe) Record(s ProbeStats) {
	if p == nil {
		return
	}
	p.circleRect.Add(s.CircleRectTests)
	p.pointInCircle.Add(s.PointInCircleTests)
}
