// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-collider/pkg/collision"
	"github.com/opd-ai/go-collider/pkg/entity"
	"github.com/opd-ai/go-collider/pkg/physics"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// SimConfig contains configuration for a collision simulation
type SimConfig struct {
	World   WorldConfig      `json:"world" yaml:"world"`
	Blobs   BlobConfig       `json:"blobs" yaml:"blobs"`
	Policy  collision.Policy `json:"policy" yaml:"policy"`
	Workers int              `json:"workers" yaml:"workers"`
	// TickDelayMs is the wall-clock delay between ticks when running.
	TickDelayMs int `json:"tickDelayMs" yaml:"tick_delay_ms"`
	// Seed drives blob placement and motion. 0 picks a random seed.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// WorldConfig contains the size of the simulated region
type WorldConfig struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// BlobConfig contains the initial population settings
type BlobConfig struct {
	Count  int           `json:"count" yaml:"count"`
	Radius float64       `json:"radius" yaml:"radius"`
	Motion entity.Motion `json:"motion" yaml:"motion"`
	// Batch is how many blobs a random spawn adds.
	Batch int `json:"batch" yaml:"batch"`
}

// Bounds returns the world rectangle anchored at the origin.
func (c *SimConfig) Bounds() physics.Rect {
	return physics.NewRect(c.World.Width, c.World.Height)
}

// TickDelay returns TickDelayMs as a duration.
func (c *SimConfig) TickDelay() time.Duration {
	return time.Duration(c.TickDelayMs) * time.Millisecond
}

// LoadConfig loads a configuration from a file. Files ending in .yaml or
// .yml are read as YAML, anything else as JSON. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves a configuration to a file, in YAML or JSON by extension
func SaveConfig(config *SimConfig, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// DefaultConfig returns a default simulation configuration
func DefaultConfig() *SimConfig {
	return &SimConfig{
		World: WorldConfig{
			Width:  800,
			Height: 600,
		},
		Blobs: BlobConfig{
			Count:  0,
			Radius: entity.DefaultRadius,
			Motion: entity.Bouncer,
			Batch:  10,
		},
		Policy:      collision.PolicyMark,
		Workers:     1,
		TickDelayMs: 100,
	}
}

// Environment variables read by ApplyEnvironmentOverrides
const (
	EnvWidth       = "COLLIDER_WIDTH"
	EnvHeight      = "COLLIDER_HEIGHT"
	EnvBlobs       = "COLLIDER_BLOBS"
	EnvBlobRadius  = "COLLIDER_BLOB_RADIUS"
	EnvMotion      = "COLLIDER_MOTION"
	EnvPolicy      = "COLLIDER_POLICY"
	EnvWorkers     = "COLLIDER_WORKERS"
	EnvTickDelayMs = "COLLIDER_TICK_DELAY_MS"
	EnvSeed        = "COLLIDER_SEED"
)

// ApplyEnvironmentOverrides replaces fields whose COLLIDER_* variable is
// set. Unset or empty variables leave the field alone.
func (c *SimConfig) ApplyEnvironmentOverrides() error {
	var errs []error
	override := func(key string, apply func(string) error) {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			return
		}
		if err := apply(value); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, value, err))
		}
	}

	override(EnvWidth, floatSetter(&c.World.Width))
	override(EnvHeight, floatSetter(&c.World.Height))
	override(EnvBlobs, intSetter(&c.Blobs.Count))
	override(EnvBlobRadius, floatSetter(&c.Blobs.Radius))
	override(EnvMotion, func(v string) error { return c.Blobs.Motion.UnmarshalText([]byte(v)) })
	override(EnvPolicy, func(v string) error { return c.Policy.UnmarshalText([]byte(v)) })
	override(EnvWorkers, intSetter(&c.Workers))
	override(EnvTickDelayMs, intSetter(&c.TickDelayMs))
	override(EnvSeed, func(v string) error {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			c.Seed = seed
		}
		return err
	})

	return errors.Join(errs...)
}

func floatSetter(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			*dst = f
		}
		return err
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err
	}
}

// Validate checks that the configuration can drive a simulation
func (c *SimConfig) Validate() error {
	var problems []string

	if !(c.World.Width > 0) || math.IsInf(c.World.Width, 0) {
		problems = append(problems, fmt.Sprintf("world width must be positive and finite, got %v", c.World.Width))
	}
	if !(c.World.Height > 0) || math.IsInf(c.World.Height, 0) {
		problems = append(problems, fmt.Sprintf("world height must be positive and finite, got %v", c.World.Height))
	}
	if c.Blobs.Count < 0 {
		problems = append(problems, fmt.Sprintf("blob count must not be negative, got %d", c.Blobs.Count))
	}
	if c.Blobs.Batch < 0 {
		problems = append(problems, fmt.Sprintf("blob batch must not be negative, got %d", c.Blobs.Batch))
	}
	if !(c.Blobs.Radius >= 0) || math.IsInf(c.Blobs.Radius, 0) {
		problems = append(problems, fmt.Sprintf("blob radius must be non-negative and finite, got %v", c.Blobs.Radius))
	}
	if c.Blobs.Motion != entity.Bouncer && c.Blobs.Motion != entity.Wanderer {
		problems = append(problems, fmt.Sprintf("unknown blob motion %v", c.Blobs.Motion))
	}
	if c.Policy != collision.PolicyMark && c.Policy != collision.PolicyRemove {
		problems = append(problems, fmt.Sprintf("unknown collision policy %v", c.Policy))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	if c.TickDelayMs < 1 {
		problems = append(problems, fmt.Sprintf("tick delay must be at least 1ms, got %d", c.TickDelayMs))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
