// pkg/entity/entity_test.go
package entity

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/opd-ai/go-collider/pkg/physics"
)

var world = physics.NewRect(800, 600)

func TestParseMotion(t *testing.T) {
	tests := []struct {
		input    string
		expected Motion
		wantErr  bool
	}{
		{"bouncer", Bouncer, false},
		{"b", Bouncer, false},
		{"Wanderer", Wanderer, false},
		{"w", Wanderer, false},
		{"x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMotion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMotion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseMotion(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMotion_Text(t *testing.T) {
	for _, m := range []Motion{Bouncer, Wanderer} {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error: %v", m, err)
		}
		var back Motion
		if err := back.UnmarshalText(text); err != nil || back != m {
			t.Errorf("UnmarshalText(%q) = %v, %v", text, back, err)
		}
	}
	if _, err := Motion(5).MarshalText(); err == nil {
		t.Error("MarshalText() of an unknown motion should fail")
	}
}

func TestNewBlob(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	a := NewBlob(physics.Vector2D{X: 10, Y: 20}, DefaultRadius, Bouncer, rng)
	b := NewBlob(physics.Vector2D{X: 10, Y: 20}, DefaultRadius, Bouncer, rng)

	if a.ID() == b.ID() {
		t.Error("blobs should get distinct entity IDs")
	}
	if a.X() != 10 || a.Y() != 20 {
		t.Errorf("position = (%v, %v), want (10, 20)", a.X(), a.Y())
	}
	if speed := a.Velocity.Length(); speed >= 1 {
		t.Errorf("speed %v of %v should be below 1", speed, a.Velocity)
	}
	if a.Velocity == b.Velocity {
		t.Error("blobs drawn from one generator should get different velocities")
	}
}

func TestBlob_BouncerReflects(t *testing.T) {
	tests := []struct {
		name         string
		position     physics.Vector2D
		velocity     physics.Vector2D
		wantPosition physics.Vector2D
		wantVelocity physics.Vector2D
	}{
		{
			name:         "free flight",
			position:     physics.Vector2D{X: 100, Y: 100},
			velocity:     physics.Vector2D{X: 1, Y: -1},
			wantPosition: physics.Vector2D{X: 101, Y: 99},
			wantVelocity: physics.Vector2D{X: 1, Y: -1},
		},
		{
			name:         "left wall",
			position:     physics.Vector2D{X: 5.5, Y: 100},
			velocity:     physics.Vector2D{X: -1, Y: 0},
			wantPosition: physics.Vector2D{X: 5, Y: 100},
			wantVelocity: physics.Vector2D{X: 1, Y: 0},
		},
		{
			name:         "already leaving the wall",
			position:     physics.Vector2D{X: 4, Y: 100},
			velocity:     physics.Vector2D{X: 0.5, Y: 0.25},
			wantPosition: physics.Vector2D{X: 5, Y: 100.25},
			wantVelocity: physics.Vector2D{X: 0.5, Y: 0.25},
		},
		{
			name:         "top wall keeps sideways speed",
			position:     physics.Vector2D{X: 200, Y: 5.5},
			velocity:     physics.Vector2D{X: 0.5, Y: -1},
			wantPosition: physics.Vector2D{X: 200.5, Y: 5},
			wantVelocity: physics.Vector2D{X: 0.5, Y: 1},
		},
		{
			name:         "bottom right corner",
			position:     physics.Vector2D{X: 794.5, Y: 594.5},
			velocity:     physics.Vector2D{X: 1, Y: 1},
			wantPosition: physics.Vector2D{X: 795, Y: 595},
			wantVelocity: physics.Vector2D{X: -1, Y: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Blob{Position: tt.position, Velocity: tt.velocity, Radius: 5}
			b.Step(1, world, nil)
			if b.Position != tt.wantPosition {
				t.Errorf("position = %v, want %v", b.Position, tt.wantPosition)
			}
			if b.Velocity != tt.wantVelocity {
				t.Errorf("velocity = %v, want %v", b.Velocity, tt.wantVelocity)
			}
		})
	}
}

func TestBlob_StaysInsideWorld(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	small := physics.NewRect(8, 8)

	for _, motion := range []Motion{Bouncer, Wanderer} {
		for _, bounds := range []physics.Rect{world, small} {
			b := NewBlob(physics.Vector2D{X: 4, Y: 4}, DefaultRadius, motion, rng)
			b.Velocity = physics.Vector2D{X: -3, Y: 2}
			for i := 0; i < 1000; i++ {
				b.Step(1, bounds, rng)
				if !bounds.Contains(b.X(), b.Y()) {
					t.Fatalf("%v left %v at step %d: %v", motion, bounds, i, b.Position)
				}
			}
		}
	}
}

func TestBlob_WandererChangesHeading(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 2))
	b := NewBlob(physics.Vector2D{X: 400, Y: 300}, DefaultRadius, Wanderer, rng)

	b.Step(1, world, rng) // picks a heading on the first step
	heading := b.Velocity
	for i := 1; i < wanderSteps; i++ {
		b.Step(1, world, rng)
		if b.Velocity != heading {
			t.Fatalf("heading changed early at step %d", i)
		}
	}
	b.Step(1, world, rng)
	if b.Velocity == heading {
		t.Error("heading should change after wanderSteps steps")
	}
}

func TestBlob_WandererKeepsSpeed(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 3))
	b := NewBlob(physics.Vector2D{X: 400, Y: 300}, DefaultRadius, Wanderer, rng)
	b.Velocity = physics.Vector2D{X: 0.6, Y: 0.8}

	for i := 0; i < 5*wanderSteps; i++ {
		b.Step(1, world, rng)
		if speed := b.Velocity.Length(); math.Abs(speed-1) > 1e-9 {
			t.Fatalf("speed drifted to %v at step %d", speed, i)
		}
	}
}
