// cmd/dottree/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/opd-ai/go-collider/pkg/collision"
	"github.com/opd-ai/go-collider/pkg/logging"
	"github.com/opd-ai/go-collider/pkg/physics"
)

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	pointsPath := flag.String("points", "points.json", "Points file (.json, .yaml or .yml) holding a list of {x, y, label}")
	width := flag.Float64("width", 800, "World width")
	height := flag.Float64("height", 600, "World height")
	cx := flag.Float64("x", 0, "Query centre x")
	cy := flag.Float64("y", 0, "Query centre y")
	r := flag.Float64("r", -1, "Query radius, negative skips the query")
	dump := flag.Bool("dump", false, "Print the tree structure")
	colliders := flag.Float64("colliders", 0, "Report points within this radius of another point, 0 skips")
	flag.Parse()

	dots, err := loadDots(*pointsPath)
	if err != nil {
		logger.Error(ctx, "Failed to load points", err, "points_path", *pointsPath)
		os.Exit(1)
	}

	if err := run(ctx, os.Stdout, dots, options{
		bounds:    physics.NewRect(*width, *height),
		cx:        *cx,
		cy:        *cy,
		r:         *r,
		dump:      *dump,
		colliders: *colliders,
	}); err != nil {
		logger.Error(ctx, "Query failed", err, "points", len(dots))
		os.Exit(1)
	}
}

type options struct {
	bounds    physics.Rect
	cx, cy, r float64
	dump      bool
	colliders float64
}

func run(ctx context.Context, w io.Writer, dots []dot, opts options) error {
	probe := physics.NewProbe()
	tree, skipped, err := buildTree(dots, opts.bounds, probe)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "points: %d stored, %d outside %v, depth %d\n", tree.Size(), len(skipped), opts.bounds, tree.Depth())
	for _, d := range skipped {
		fmt.Fprintf(w, "  skipped %v\n", d)
	}
	if opts.dump {
		fmt.Fprintln(w, tree.String())
	}

	if opts.r >= 0 {
		found := tree.FindInCircle(opts.cx, opts.cy, opts.r)
		fmt.Fprintf(w, "circle (%g,%g) r=%g: %d found\n", opts.cx, opts.cy, opts.r, len(found))
		for _, d := range found {
			fmt.Fprintf(w, "  %v\n", d)
		}
		stats := probe.Snapshot()
		fmt.Fprintf(w, "tests: %d circle/rect, %d point/circle\n", stats.CircleRectTests, stats.PointInCircleTests)
	}

	if opts.colliders > 0 {
		detector := collision.NewDetector[dot](opts.bounds, collision.WithLogger(logging.Discard()))
		inside := tree.AllPoints()
		result, err := detector.FindColliders(ctx, inside, func(dot) float64 { return opts.colliders })
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "colliders r=%g: %d of %d\n", opts.colliders, result.Len(), len(inside))
		for _, d := range result.Colliders {
			fmt.Fprintf(w, "  %v\n", d)
		}
	}
	return nil
}
