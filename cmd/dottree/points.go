// cmd/dottree/points.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-collider/pkg/physics"
	"github.com/opd-ai/go-collider/pkg/quadtree"
)

// dot is a labelled point read from a points file
type dot struct {
	PX    float64 `json:"x" yaml:"x"`
	PY    float64 `json:"y" yaml:"y"`
	Label string  `json:"label,omitempty" yaml:"label,omitempty"`
}

func (d dot) X() float64 { return d.PX }
func (d dot) Y() float64 { return d.PY }

func (d dot) String() string {
	if d.Label == "" {
		return fmt.Sprintf("(%g,%g)", d.PX, d.PY)
	}
	return fmt.Sprintf("%s(%g,%g)", d.Label, d.PX, d.PY)
}

// errInvalidPoints is returned when a points file does not match pointsSchema
var errInvalidPoints = errors.New("invalid points file")

const pointsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["x", "y"],
		"properties": {
			"x": {"type": "number"},
			"y": {"type": "number"},
			"label": {"type": "string"}
		},
		"additionalProperties": false
	}
}`

var pointsSchemaLoader = gojsonschema.NewStringLoader(pointsSchema)

// loadDots reads a list of points from a .json, .yaml or .yml file
func loadDots(path string) ([]dot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read points: %w", err)
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var doc interface{}
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse points %s: %w", path, err)
	}
	if err := validateDots(doc); err != nil {
		return nil, fmt.Errorf("points %s: %w", path, err)
	}

	var dots []dot
	if err := unmarshal(data, &dots); err != nil {
		return nil, fmt.Errorf("parse points %s: %w", path, err)
	}
	return dots, nil
}

func validateDots(doc interface{}) error {
	result, err := gojsonschema.Validate(pointsSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("%w: %s", errInvalidPoints, strings.Join(problems, "; "))
	}
	return nil
}

// buildTree inserts dots in file order. Points outside bounds are skipped
// and returned so the caller can report them.
func buildTree(dots []dot, bounds physics.Rect, probe *physics.Probe) (*quadtree.Tree[dot], []dot, error) {
	var (
		tree    *quadtree.Tree[dot]
		skipped []dot
		err     error
	)
	for _, d := range dots {
		if tree == nil {
			tree, err = quadtree.New(d, bounds, quadtree.WithProbe(probe))
		} else {
			err = tree.Insert(d)
		}
		switch {
		case errors.Is(err, quadtree.ErrOutOfBounds):
			skipped = append(skipped, d)
		case err != nil:
			return nil, nil, err
		}
	}
	if tree == nil {
		return nil, skipped, quadtree.ErrEmpty
	}
	return tree, skipped, nil
}
