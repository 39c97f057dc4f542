package quadtree

import (
	"github.com/opd-ai/go-collider/pkg/physics"
)

// Quadrant identifies one of the four children of a node. Y grows
// downward, so the northern quadrants lie above the anchor.
type Quadrant int

const (
	NE Quadrant = iota + 1
	NW
	SW
	SE
)

// Quadrants lists the quadrants in evaluation order.
var Quadrants = [4]Quadrant{NE, NW, SW, SE}

func (q Quadrant) String() string {
	switch q {
	case NE:
		return "NE"
	case NW:
		return "NW"
	case SW:
		return "SW"
	case SE:
		return "SE"
	default:
		return "root"
	}
}

func (q Quadrant) index() int { return int(q) - 1 }

func (q Quadrant) valid() bool { return q >= NE && q <= SE }

// quadrantOf picks the quadrant of n that (px, py) falls in. Quadrants share
// their edges along the anchor's lines; the first match in NE, NW, SW, SE
// order wins, so a point equal to the anchor goes to NE.
func (n *node[P]) quadrantOf(px, py float64) (Quadrant, bool) {
	b := n.bounds
	switch {
	case n.x <= px && px <= b.X2 && b.Y1 <= py && py <= n.y:
		return NE, true
	case b.X1 <= px && px <= n.x && b.Y1 <= py && py <= n.y:
		return NW, true
	case b.X1 <= px && px <= n.x && n.y <= py && py <= b.Y2:
		return SW, true
	case n.x <= px && px <= b.X2 && n.y <= py && py <= b.Y2:
		return SE, true
	}
	return 0, false
}

// quadrantBounds returns the part of n's bounds that q covers.
func (n *node[P]) quadrantBounds(q Quadrant) physics.Rect {
	b := n.bounds
	switch q {
	case NE:
		return physics.Rect{X1: n.x, Y1: b.Y1, X2: b.X2, Y2: n.y}
	case NW:
		return physics.Rect{X1: b.X1, Y1: b.Y1, X2: n.x, Y2: n.y}
	case SW:
		return physics.Rect{X1: b.X1, Y1: n.y, X2: n.x, Y2: b.Y2}
	default:
		return physics.Rect{X1: n.x, Y1: n.y, X2: b.X2, Y2: b.Y2}
	}
}

// Node is a read-only view of one tree node.
type Node[P Point] struct {
	n *node[P]
}

// Anchor returns the point stored at this node.
func (v Node[P]) Anchor() P { return v.n.anchor }

// Bounds returns the rectangle this node and its subtree cover.
func (v Node[P]) Bounds() physics.Rect { return v.n.bounds }

// HasChild reports whether quadrant q holds a subtree.
func (v Node[P]) HasChild(q Quadrant) bool {
	return q.valid() && v.n.children[q.index()] != nil
}

// Child returns the subtree in quadrant q, if any.
func (v Node[P]) Child(q Quadrant) (Node[P], bool) {
	if !v.HasChild(q) {
		return Node[P]{}, false
	}
	return Node[P]{n: v.n.children[q.index()]}, true
}

// Size counts the points in this node's subtree.
func (v Node[P]) Size() int { return v.n.size() }

// Visit describes a node reached by Walk.
type Visit[P Point] struct {
	Node     Node[P]
	Depth    int      // root is 0
	Quadrant Quadrant // quadrant of the parent; 0 for the root
}

// Walk calls fn for every node, parents before children. Returning false
// from fn skips that node's subtree.
func (t *Tree[P]) Walk(fn func(Visit[P]) bool) {
	walk(t.root, 0, 0, fn)
}

func walk[P Point](n *node[P], depth int, q Quadrant, fn func(Visit[P]) bool) {
	if !fn(Visit[P]{Node: Node[P]{n: n}, Depth: depth, Quadrant: q}) {
		return
	}
	for i, c := range n.children {
		if c != nil {
			walk(c, depth+1, Quadrant(i+1), fn)
		}
	}
}
