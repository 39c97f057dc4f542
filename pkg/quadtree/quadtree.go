// Package quadtree implements a point quadtree: every node stores one point
// (its anchor) and splits its rectangle into four quadrants at that point.
//
// The tree is built by insertion only. There is no deletion and no
// rebalancing, so the shape depends on insertion order and an unlucky order
// produces a long chain. Callers that move their points rebuild the tree.
//
// A Tree is not safe for concurrent Insert. Once construction is finished any
// number of goroutines may query it.
package quadtree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opd-ai/go-collider/pkg/physics"
)

var (
	// ErrOutOfBounds is returned when a point matches no quadrant of the tree.
	ErrOutOfBounds = errors.New("point outside quadtree bounds")
	// ErrInvalidBounds is returned for unordered or non-finite bounds.
	ErrInvalidBounds = errors.New("invalid quadtree bounds")
	// ErrEmpty is returned by Build when there is no point to seed the root.
	ErrEmpty = errors.New("no points to build quadtree from")
)

// Point is anything with a 2D position.
type Point interface {
	X() float64
	Y() float64
}

// Option configures a Tree.
type Option func(*options)

type options struct {
	probe *physics.Probe
}

// WithProbe counts the geometry tests performed by range queries.
func WithProbe(p *physics.Probe) Option {
	return func(o *options) {
		o.probe = p
	}
}

// Tree is a point quadtree over points of type P.
type Tree[P Point] struct {
	root  *node[P]
	probe *physics.Probe
}

type node[P Point] struct {
	anchor   P
	x, y     float64 // anchor position at insertion time
	bounds   physics.Rect
	children [4]*node[P]
}

// New creates a single-node tree anchored at root and covering bounds.
func New[P Point](root P, bounds physics.Rect, opts ...Option) (*Tree[P], error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("new quadtree %v: %w", bounds, ErrInvalidBounds)
	}
	x, y := root.X(), root.Y()
	if !bounds.Contains(x, y) {
		return nil, fmt.Errorf("new quadtree root (%g, %g) in %v: %w", x, y, bounds, ErrOutOfBounds)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Tree[P]{
		root:  &node[P]{anchor: root, x: x, y: y, bounds: bounds},
		probe: o.probe,
	}, nil
}

// MustNew is like New but panics if root lies outside bounds.
func MustNew[P Point](root P, bounds physics.Rect, opts ...Option) *Tree[P] {
	t, err := New(root, bounds, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Build seeds a tree with points[0] and inserts the rest in order.
func Build[P Point](points []P, bounds physics.Rect, opts ...Option) (*Tree[P], error) {
	if len(points) == 0 {
		return nil, ErrEmpty
	}
	t, err := New(points[0], bounds, opts...)
	if err != nil {
		return nil, err
	}
	for i, p := range points[1:] {
		if err := t.Insert(p); err != nil {
			return nil, fmt.Errorf("point %d: %w", i+1, err)
		}
	}
	return t, nil
}

// Insert adds p below the first node whose quadrant has no child for it.
// A point that matches no quadrant of the root is rejected with
// ErrOutOfBounds and the tree is left unchanged.
func (t *Tree[P]) Insert(p P) error {
	px, py := p.X(), p.Y()
	n := t.root
	for {
		q, ok := n.quadrantOf(px, py)
		if !ok {
			return fmt.Errorf("insert (%g, %g) into %v: %w", px, py, n.bounds, ErrOutOfBounds)
		}
		child := n.children[q.index()]
		if child == nil {
			n.children[q.index()] = &node[P]{anchor: p, x: px, y: py, bounds: n.quadrantBounds(q)}
			return nil
		}
		n = child
	}
}

// Size counts the stored points by walking the whole tree.
func (t *Tree[P]) Size() int {
	return t.root.size()
}

func (n *node[P]) size() int {
	num := 1
	for _, c := range n.children {
		if c != nil {
			num += c.size()
		}
	}
	return num
}

// AllPoints returns every stored point. Children are listed before their
// parent, quadrants in order NE, NW, SW, SE.
func (t *Tree[P]) AllPoints() []P {
	points := make([]P, 0, t.Size())
	return t.root.collect(points)
}

func (n *node[P]) collect(points []P) []P {
	for _, c := range n.children {
		if c != nil {
			points = c.collect(points)
		}
	}
	return append(points, n.anchor)
}

// FindInCircle returns the stored points within distance r of (cx, cy).
// Subtrees whose bounds miss the circle are skipped without looking at
// their points.
func (t *Tree[P]) FindInCircle(cx, cy, r float64) []P {
	var found []P
	return t.root.find(found, t.probe, cx, cy, r)
}

func (n *node[P]) find(found []P, probe *physics.Probe, cx, cy, r float64) []P {
	if !probe.CircleIntersectsRect(cx, cy, r, n.bounds) {
		return found
	}
	if probe.PointInCircle(n.x, n.y, cx, cy, r) {
		found = append(found, n.anchor)
	}
	for _, c := range n.children {
		if c != nil {
			found = c.find(found, probe, cx, cy, r)
		}
	}
	return found
}

// Anchor returns the root point.
func (t *Tree[P]) Anchor() P { return t.root.anchor }

// Bounds returns the rectangle covered by the tree.
func (t *Tree[P]) Bounds() physics.Rect { return t.root.bounds }

// Root returns a read-only view of the root node.
func (t *Tree[P]) Root() Node[P] { return Node[P]{n: t.root} }

// Probe returns the probe attached with WithProbe, or nil.
func (t *Tree[P]) Probe() *physics.Probe { return t.probe }

// Depth returns the number of nodes on the longest root-to-leaf path.
func (t *Tree[P]) Depth() int {
	return t.root.depth()
}

func (n *node[P]) depth() int {
	deepest := 0
	for _, c := range n.children {
		if c != nil {
			if d := c.depth(); d > deepest {
				deepest = d
			}
		}
	}
	return deepest + 1
}

// String renders the tree structure, e.g. "(300,400)[SW:(150,450)[SE:(250,550)]]".
func (t *Tree[P]) String() string {
	var b strings.Builder
	t.root.format(&b)
	return b.String()
}

func (n *node[P]) format(b *strings.Builder) {
	fmt.Fprintf(b, "(%g,%g)", n.x, n.y)
	first := true
	for i, c := range n.children {
		if c == nil {
			continue
		}
		if first {
			b.WriteByte('[')
			first = false
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(Quadrant(i + 1).String())
		b.WriteByte(':')
		c.format(b)
	}
	if !first {
		b.WriteByte(']')
	}
}
