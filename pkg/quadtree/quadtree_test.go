package quadtree

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/opd-ai/go-collider/pkg/physics"
)

type dot struct {
	x, y  float64
	label string
}

func (d dot) X() float64 { return d.x }
func (d dot) Y() float64 { return d.y }

var screen = physics.NewRect(800, 600)

func labels(points []dot) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.label
	}
	sort.Strings(out)
	return out
}

func equalLabels(got []dot, want ...string) bool {
	g := labels(got)
	sort.Strings(want)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

// threeDots builds the first three points of the reference figure.
func threeDots(t *testing.T, probe *physics.Probe) *Tree[dot] {
	t.Helper()
	tree, err := New(dot{300, 400, "A"}, screen, WithProbe(probe))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	for _, d := range []dot{{150, 450, "B"}, {250, 550, "C"}} {
		if err := tree.Insert(d); err != nil {
			t.Fatalf("Insert(%v) failed: %v", d, err)
		}
	}
	return tree
}

// twelveDots builds the full reference figure.
func twelveDots(t *testing.T, probe *physics.Probe) *Tree[dot] {
	t.Helper()
	tree := MustNew(dot{300, 400, "A"}, screen, WithProbe(probe))
	for _, d := range []dot{
		{150, 450, "B"}, {250, 550, "C"}, {450, 200, "D"}, {200, 250, "E"},
		{350, 175, "F"}, {500, 125, "G"}, {475, 250, "H"}, {525, 225, "I"},
		{490, 215, "J"}, {700, 550, "K"}, {310, 410, "L"},
	} {
		if err := tree.Insert(d); err != nil {
			t.Fatalf("Insert(%v) failed: %v", d, err)
		}
	}
	return tree
}

type findCase struct {
	name       string
	x, y, r    float64
	circleRect int64
	inCircle   int64
	hits       []string
}

func runFindCases(t *testing.T, tree *Tree[dot], probe *physics.Probe, tests []findCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe.Reset()
			found := tree.FindInCircle(tt.x, tt.y, tt.r)

			if got := probe.CircleRectTests(); got != tt.circleRect {
				t.Errorf("circle-rectangle tests = %d, expected %d", got, tt.circleRect)
			}
			if got := probe.PointInCircleTests(); got != tt.inCircle {
				t.Errorf("point-in-circle tests = %d, expected %d", got, tt.inCircle)
			}
			if !equalLabels(found, tt.hits...) {
				t.Errorf("found %v, expected %v", labels(found), tt.hits)
			}
		})
	}
}

func TestTree_ThreeDots(t *testing.T) {
	probe := physics.NewProbe()
	tree := threeDots(t, probe)

	if tree.Size() != 3 {
		t.Errorf("Size() = %d, expected 3", tree.Size())
	}
	if n := len(tree.AllPoints()); n != 3 {
		t.Errorf("len(AllPoints()) = %d, expected 3", n)
	}

	runFindCases(t, tree, probe, []findCase{
		{"all", 0, 0, 900, 3, 3, []string{"A", "B", "C"}},
		{"near_A", 300, 400, 10, 3, 2, []string{"A"}},
		{"near_B", 150, 450, 10, 3, 3, []string{"B"}},
		{"near_C", 250, 550, 10, 3, 3, []string{"C"}},
		{"B_and_C", 150, 450, 150, 3, 3, []string{"B", "C"}},
		{"between", 140, 440, 10, 3, 2, nil},
		{"far_corner", 750, 550, 10, 2, 1, nil},
	})
}

func TestTree_TwelveDots(t *testing.T) {
	probe := physics.NewProbe()
	tree := twelveDots(t, probe)

	if tree.Size() != 12 {
		t.Errorf("Size() = %d, expected 12", tree.Size())
	}
	if n := len(tree.AllPoints()); n != 12 {
		t.Errorf("len(AllPoints()) = %d, expected 12", n)
	}
	if tree.Depth() != 5 {
		t.Errorf("Depth() = %d, expected 5", tree.Depth())
	}

	runFindCases(t, tree, probe, []findCase{
		{"near_B", 150, 450, 10, 6, 3, []string{"B"}},
		{"near_G", 500, 125, 10, 8, 3, []string{"G"}},
		{"A_and_L", 300, 400, 15, 10, 6, []string{"A", "L"}},
		{"H_I_J", 495, 225, 50, 10, 6, []string{"H", "I", "J"}},
		{"all", 0, 0, 900, 12, 12, []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}},
	})
}

func TestTree_Structure(t *testing.T) {
	tree := twelveDots(t, nil)

	expected := "(300,400)[NE:(450,200)[NE:(500,125) NW:(350,175) SE:(475,250)[NE:(525,225)[NW:(490,215)]]]" +
		" NW:(200,250) SW:(150,450)[SE:(250,550)] SE:(700,550)[NW:(310,410)]]"
	if got := tree.String(); got != expected {
		t.Errorf("String() =\n%s\nexpected\n%s", got, expected)
	}

	root := tree.Root()
	d, ok := root.Child(NE)
	if !ok || d.Anchor().label != "D" {
		t.Fatalf("expected D in NE of root")
	}
	if d.Bounds() != (physics.Rect{X1: 300, Y1: 0, X2: 800, Y2: 400}) {
		t.Errorf("D bounds = %v", d.Bounds())
	}
	if d.Size() != 6 {
		t.Errorf("D subtree size = %d, expected 6", d.Size())
	}
	if root.HasChild(Quadrant(0)) || root.HasChild(Quadrant(5)) {
		t.Error("HasChild should be false for invalid quadrants")
	}
}

func TestTree_ChildBoundsAreQuadrants(t *testing.T) {
	tree := twelveDots(t, nil)

	tree.Walk(func(v Visit[dot]) bool {
		n := v.Node
		a := n.Anchor()
		if !n.Bounds().Contains(a.x, a.y) {
			t.Errorf("anchor %v outside its bounds %v", a, n.Bounds())
		}
		for _, q := range Quadrants {
			child, ok := n.Child(q)
			if !ok {
				continue
			}
			want := n.n.quadrantBounds(q)
			if child.Bounds() != want {
				t.Errorf("%s child of %v has bounds %v, expected %v", q, a, child.Bounds(), want)
			}
		}
		return true
	})
}

func TestTree_CoincidentAndOnLinePoints(t *testing.T) {
	probe := physics.NewProbe()
	tree := MustNew(dot{400, 300, "A"}, screen, WithProbe(probe))
	for _, d := range []dot{
		{0, 0, "B"}, {0, 0, "C"}, // same spot
		{200, 150, "D"}, {100, 75, "E"},
		{400, 200, "A.5"}, // on the anchor's vertical line
	} {
		if err := tree.Insert(d); err != nil {
			t.Fatalf("Insert(%v) failed: %v", d, err)
		}
	}

	if tree.Size() != 6 {
		t.Errorf("Size() = %d, expected 6", tree.Size())
	}
	if got := tree.String(); got != "(400,300)[NE:(400,200) NW:(0,0)[NE:(0,0) SE:(200,150)[NW:(100,75)]]]" {
		t.Errorf("unexpected structure %s", got)
	}

	runFindCases(t, tree, probe, []findCase{
		{"both_coincident", 5, 0, 5, 6, 5, []string{"B", "C"}},
		{"touch_D", 300, 150, 100, 6, 5, []string{"D"}},
		{"miss_D", 300, 150, 99, 6, 3, nil},
	})
}

func TestQuadrantTieBreak(t *testing.T) {
	n := &node[dot]{x: 100, y: 100, bounds: physics.NewRect(200, 200)}

	tests := []struct {
		name   string
		px, py float64
		want   Quadrant
	}{
		{"anchor_itself", 100, 100, NE},
		{"vertical_line_north", 100, 50, NE},
		{"vertical_line_south", 100, 150, SW},
		{"horizontal_line_west", 50, 100, NW},
		{"horizontal_line_east", 150, 100, NE},
		{"strict_ne", 150, 50, NE},
		{"strict_nw", 50, 50, NW},
		{"strict_sw", 50, 150, SW},
		{"strict_se", 150, 150, SE},
		{"top_left_corner", 0, 0, NW},
		{"bottom_right_corner", 200, 200, SE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.quadrantOf(tt.px, tt.py)
			if !ok || got != tt.want {
				t.Errorf("quadrantOf(%v, %v) = %v, %v; expected %v", tt.px, tt.py, got, ok, tt.want)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(dot{900, 10, "X"}, screen); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds for root outside bounds, got %v", err)
	}
	if _, err := New(dot{1, 1, "X"}, physics.Rect{X1: 10, X2: 0, Y2: 10}); !errors.Is(err, ErrInvalidBounds) {
		t.Errorf("expected ErrInvalidBounds, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustNew should panic for a root outside bounds")
		}
	}()
	MustNew(dot{-1, -1, "X"}, screen)
}

func TestInsert_OutOfBoundsLeavesTreeUnchanged(t *testing.T) {
	tree := threeDots(t, nil)
	before := tree.String()

	for _, d := range []dot{{801, 10, "X"}, {10, -0.5, "Y"}, {math.NaN(), 10, "Z"}} {
		err := tree.Insert(d)
		if !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("Insert(%v) = %v, expected ErrOutOfBounds", d, err)
		}
	}

	if tree.Size() != 3 {
		t.Errorf("Size() = %d after rejected inserts, expected 3", tree.Size())
	}
	if tree.String() != before {
		t.Errorf("tree changed after rejected inserts: %s", tree.String())
	}
}

func TestInsert_EdgesOfBoundsAccepted(t *testing.T) {
	tree := MustNew(dot{400, 300, "A"}, screen)
	for _, d := range []dot{{0, 0, "tl"}, {800, 0, "tr"}, {0, 600, "bl"}, {800, 600, "br"}} {
		if err := tree.Insert(d); err != nil {
			t.Errorf("Insert(%v) failed: %v", d, err)
		}
	}
	if tree.Size() != 5 {
		t.Errorf("Size() = %d, expected 5", tree.Size())
	}
}

func TestFindInCircle_DegenerateRadius(t *testing.T) {
	tree := threeDots(t, nil)

	if found := tree.FindInCircle(300, 400, 0); !equalLabels(found, "A") {
		t.Errorf("zero radius on A found %v, expected [A]", labels(found))
	}
	if found := tree.FindInCircle(301, 400, 0); len(found) != 0 {
		t.Errorf("zero radius off any point found %v", labels(found))
	}
	if found := tree.FindInCircle(300, 400, -5); len(found) != 0 {
		t.Errorf("negative radius found %v", labels(found))
	}
}

func TestAllPoints_ChildrenBeforeParent(t *testing.T) {
	tree := threeDots(t, nil)
	points := tree.AllPoints()

	got := []string{points[0].label, points[1].label, points[2].label}
	expected := []string{"C", "B", "A"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("AllPoints() order = %v, expected %v", got, expected)
		}
	}
}

func TestBuild(t *testing.T) {
	if _, err := Build[dot](nil, screen); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}

	_, err := Build([]dot{{1, 1, "a"}, {2, 2, "b"}, {900, 2, "c"}}, screen)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}

	tree, err := Build([]dot{{1, 1, "a"}, {2, 2, "b"}}, screen)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if tree.Anchor().label != "a" || tree.Bounds() != screen {
		t.Errorf("unexpected root %v %v", tree.Anchor(), tree.Bounds())
	}
}

func TestWalk_SkipsSubtree(t *testing.T) {
	tree := twelveDots(t, nil)

	visited := 0
	tree.Walk(func(v Visit[dot]) bool {
		visited++
		// do not descend below D
		return v.Node.Anchor().label != "D"
	})
	// everything except the five points under D
	if visited != 7 {
		t.Errorf("visited %d nodes, expected 7", visited)
	}
}

func randomDots(rng *rand.Rand, n int) []dot {
	points := make([]dot, n)
	for i := range points {
		points[i] = dot{
			x:     math.Round(rng.Float64() * 800),
			y:     math.Round(rng.Float64() * 600),
			label: string(rune('a'+i%26)) + string(rune('0'+i/26%10)) + string(rune('0'+i/260)),
		}
	}
	return points
}

func TestProperties_RandomTrees(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for trial := 0; trial < 20; trial++ {
		points := randomDots(rng, 200)
		tree, err := Build(points, screen)
		if err != nil {
			t.Fatalf("Build() failed: %v", err)
		}

		// size consistency
		if tree.Size() != len(points) || len(tree.AllPoints()) != len(points) {
			t.Fatalf("Size() = %d, len(AllPoints()) = %d, expected %d",
				tree.Size(), len(tree.AllPoints()), len(points))
		}

		for q := 0; q < 10; q++ {
			cx, cy, r := rng.Float64()*800, rng.Float64()*600, rng.Float64()*150

			var expected []string
			for _, p := range points {
				if math.Hypot(p.x-cx, p.y-cy) <= r {
					expected = append(expected, p.label)
				}
			}
			found := tree.FindInCircle(cx, cy, r)

			// containment
			for _, p := range found {
				if !physics.PointInCircle(p.x, p.y, cx, cy, r) {
					t.Errorf("found %v outside circle (%v,%v,%v)", p, cx, cy, r)
				}
			}
			// completeness, no duplicates
			if !equalLabels(found, expected...) {
				t.Errorf("query (%v,%v,%v) found %d points, expected %d", cx, cy, r, len(found), len(expected))
			}
		}
	}
}

func TestProperties_IdempotentRebuild(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	points := randomDots(rng, 150)

	first := labels(mustBuild(t, points).FindInCircle(400, 300, 120))
	for i := 0; i < 5; i++ {
		shuffled := append([]dot(nil), points...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		again := labels(mustBuild(t, shuffled).FindInCircle(400, 300, 120))
		if len(again) != len(first) {
			t.Fatalf("rebuild found %d points, expected %d", len(again), len(first))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("rebuild result differs at %d: %s != %s", j, again[j], first[j])
			}
		}
	}
}

func mustBuild(t *testing.T, points []dot) *Tree[dot] {
	t.Helper()
	tree, err := Build(points, screen)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return tree
}

func TestProperties_Pruning(t *testing.T) {
	// most points packed in the top-left corner, a few spread out
	rng := rand.New(rand.NewPCG(5, 6))
	var points []dot
	for i := 0; i < 300; i++ {
		points = append(points, dot{x: rng.Float64() * 50, y: rng.Float64() * 50, label: "c"})
	}
	for i := 0; i < 30; i++ {
		points = append(points, dot{x: 100 + rng.Float64()*700, y: 100 + rng.Float64()*500, label: "s"})
	}

	probe := physics.NewProbe()
	tree, err := Build(points, screen, WithProbe(probe))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if tree.Depth() <= 1 {
		t.Fatalf("expected a tree deeper than 1, got %d", tree.Depth())
	}

	probe.Reset()
	tree.FindInCircle(700, 500, 20)

	rect, in := probe.CircleRectTests(), probe.PointInCircleTests()
	if rect < in {
		t.Errorf("circle-rectangle tests (%d) < point-in-circle tests (%d)", rect, in)
	}
	if rect >= int64(len(points)) || in >= int64(len(points)) {
		t.Errorf("query did not prune: %d rect tests, %d point tests for %d points", rect, in, len(points))
	}
}

func TestInsert_SortedInputBuildsChain(t *testing.T) {
	tree := MustNew(dot{0, 0, "0"}, screen)
	for i := 1; i < 100; i++ {
		if err := tree.Insert(dot{x: float64(i), y: float64(i), label: "d"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	// no rebalancing: each point sits in the SE quadrant of the previous one
	if tree.Depth() != 100 {
		t.Errorf("Depth() = %d, expected 100", tree.Depth())
	}
}

func BenchmarkInsert(b *testing.B) {
	rng := rand.New(rand.NewPCG(7, 8))
	points := randomDots(rng, 1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(points, screen); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindInCircle(b *testing.B) {
	rng := rand.New(rand.NewPCG(9, 10))
	tree, err := Build(randomDots(rng, 10000), screen)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.FindInCircle(rng.Float64()*800, rng.Float64()*600, 10)
	}
}
