// Package collision finds the objects of a population that are close enough
// to another object to count as colliding. Each call builds a fresh
// quadtree from the population's current positions and runs one circular
// range query per object.
package collision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-collider/pkg/logging"
	"github.com/opd-ai/go-collider/pkg/physics"
	"github.com/opd-ai/go-collider/pkg/quadtree"
)

var (
	// ErrEmptyInput is returned when there is no point to seed the index with.
	ErrEmptyInput = errors.New("collision detection needs at least one point")
	// ErrInvalidRadius is returned when a radius function yields NaN.
	ErrInvalidRadius = errors.New("invalid interaction radius")
)

// RadiusFunc returns the interaction radius of a point.
type RadiusFunc[P quadtree.Point] func(P) float64

// Pair is an unordered pair of population indices found near each other, A < B.
type Pair struct {
	A, B int
}

// Result is the outcome of one detection pass.
type Result[P quadtree.Point] struct {
	// Colliders holds every point that found, or was found by, another
	// point. Each appears once, in population order.
	Colliders []P
	// Indices are the population indices of Colliders.
	Indices []int
	// Pairs lists the proximity relations, sorted.
	Pairs []Pair
	// Queries is the number of range queries run.
	Queries int
	// Depth is the depth of the index built for this pass.
	Depth int
	// Stats counts the geometry tests of all queries.
	Stats physics.ProbeStats

	member []bool
}

// IsCollider reports whether population index i collided.
func (r *Result[P]) IsCollider(i int) bool {
	return i >= 0 && i < len(r.member) && r.member[i]
}

// Len returns the number of colliders.
func (r *Result[P]) Len() int {
	return len(r.Indices)
}

// Option configures a Detector.
type Option func(*options)

type options struct {
	workers int
	probe   *physics.Probe
	logger  *logging.Logger
}

// WithWorkers runs the per-point queries on up to n goroutines.
// Values below 2 keep detection on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithProbe accumulates the geometry tests of every pass into p.
// Each Result still carries the counts of its own pass.
func WithProbe(p *physics.Probe) Option {
	return func(o *options) {
		o.probe = p
	}
}

// WithLogger sets the logger used for per-pass debug output.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Detector finds colliders among points inside a fixed region.
type Detector[P quadtree.Point] struct {
	bounds  physics.Rect
	workers int
	probe   *physics.Probe
	logger  *logging.Logger
}

// NewDetector creates a detector for points inside bounds.
func NewDetector[P quadtree.Point](bounds physics.Rect, opts ...Option) *Detector[P] {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	return &Detector[P]{
		bounds:  bounds,
		workers: o.workers,
		probe:   o.probe,
		logger:  o.logger.With("component", "collision"),
	}
}

// Bounds returns the region covered by the detector's index.
func (d *Detector[P]) Bounds() physics.Rect {
	return d.bounds
}

// entry remembers where a point sits in the population so coincident
// points stay distinct.
type entry[P quadtree.Point] struct {
	point P
	index int
}

func (e entry[P]) X() float64 { return e.point.X() }
func (e entry[P]) Y() float64 { return e.point.Y() }

// FindColliders indexes points, then queries around each point p with
// radius 2*radiusOf(p). A point whose query finds only itself does not
// collide; otherwise it and everything it found are colliders.
//
// Every point must lie within the detector bounds; the first one that does
// not fails the call with quadtree.ErrOutOfBounds.
func (d *Detector[P]) FindColliders(ctx context.Context, points []P, radiusOf RadiusFunc[P]) (*Result[P], error) {
	if len(points) == 0 {
		return nil, ErrEmptyInput
	}

	entries := make([]entry[P], len(points))
	for i, p := range points {
		entries[i] = entry[P]{point: p, index: i}
	}

	probe := physics.NewProbe()
	tree, err := quadtree.Build(entries, d.bounds, quadtree.WithProbe(probe))
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	neighbors := make([][]int, len(points))
	query := func(i int) error {
		r := radiusOf(points[i])
		if math.IsNaN(r) {
			return fmt.Errorf("point %d: %w", i, ErrInvalidRadius)
		}
		p := entries[i]
		for _, found := range tree.FindInCircle(p.X(), p.Y(), 2*r) {
			if found.index != i {
				neighbors[i] = append(neighbors[i], found.index)
			}
		}
		return nil
	}

	if err := d.queryAll(ctx, len(points), query); err != nil {
		return nil, err
	}

	result := merge(points, neighbors)
	result.Queries = len(points)
	result.Depth = tree.Depth()
	result.Stats = probe.Snapshot()
	d.probe.Record(result.Stats)

	d.logger.Debug(ctx, "collision pass",
		"points", len(points),
		"colliders", result.Len(),
		"pairs", len(result.Pairs),
		"depth", result.Depth,
		"circle_rect_tests", result.Stats.CircleRectTests,
		"point_in_circle_tests", result.Stats.PointInCircleTests,
	)
	return result, nil
}

// queryAll runs query for 0..n-1, split into contiguous chunks when more
// than one worker is configured. The tree is read-only at this point.
func (d *Detector[P]) queryAll(ctx context.Context, n int, query func(int) error) error {
	if d.workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := query(i); err != nil {
				return err
			}
		}
		return nil
	}

	workers := d.workers
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := query(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func merge[P quadtree.Point](points []P, neighbors [][]int) *Result[P] {
	member := make([]bool, len(points))
	seen := make(map[Pair]struct{})
	var pairs []Pair

	for i, found := range neighbors {
		if len(found) == 0 {
			continue
		}
		member[i] = true
		for _, j := range found {
			member[j] = true
			pair := Pair{A: min(i, j), B: max(i, j)}
			if _, ok := seen[pair]; !ok {
				seen[pair] = struct{}{}
				pairs = append(pairs, pair)
			}
		}
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].A != pairs[b].A {
			return pairs[a].A < pairs[b].A
		}
		return pairs[a].B < pairs[b].B
	})

	result := &Result[P]{Pairs: pairs, member: member}
	for i, ok := range member {
		if ok {
			result.Indices = append(result.Indices, i)
			result.Colliders = append(result.Colliders, points[i])
		}
	}
	return result
}
