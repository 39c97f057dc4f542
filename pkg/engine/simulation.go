// pkg/engine/simulation.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-collider/pkg/collision"
	"github.com/opd-ai/go-collider/pkg/config"
	"github.com/opd-ai/go-collider/pkg/entity"
	"github.com/opd-ai/go-collider/pkg/event"
	"github.com/opd-ai/go-collider/pkg/logging"
	"github.com/opd-ai/go-collider/pkg/physics"
	"github.com/opd-ai/go-collider/pkg/quadtree"
)

// ErrAlreadyRunning is returned by Run while another Run is active
var ErrAlreadyRunning = errors.New("simulation is already running")

// minTickDelay is the floor for Faster
const minTickDelay = time.Millisecond

// TickReport summarises one tick
type TickReport struct {
	Tick          uint64
	Blobs         int // population when detection ran
	Colliders     int
	Pairs         int
	Marked        int // blobs carrying the mark after the tick
	Removed       int
	Depth         int
	Stats         physics.ProbeStats
	Duration      time.Duration
	CorrelationID string
}

// Option configures a Simulation
type Option func(*Simulation)

// WithLogger sets the simulation logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Simulation) {
		s.logger = l
	}
}

// WithEventBus publishes simulation events on bus instead of a private one
func WithEventBus(bus *event.Bus) Option {
	return func(s *Simulation) {
		s.eventBus = bus
	}
}

// Simulation moves blobs around a bounded world and detects collisions
// between them once per tick
type Simulation struct {
	Config *config.SimConfig

	world      *ecs.World
	motion     *MotionSystem
	collisions *CollisionSystem

	eventBus *event.Bus
	logger   *logging.Logger
	rng      *rand.Rand
	probe    *physics.Probe

	mu          sync.RWMutex
	currentTick uint64
	lastTickAt  time.Time
	delay       time.Duration
	lastResult  *collision.Result[*entity.Blob]

	running atomic.Bool
}

// NewSimulation creates a simulation from cfg and spawns cfg.Blobs.Count
// blobs at random positions
func NewSimulation(cfg *config.SimConfig, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	s := &Simulation{
		Config: cfg,
		world:  &ecs.World{},
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		probe:  physics.NewProbe(),
		delay:  cfg.TickDelay(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger()
	}
	if s.eventBus == nil {
		s.eventBus = event.NewEventBus()
	}

	detector := collision.NewDetector[*entity.Blob](cfg.Bounds(),
		collision.WithWorkers(cfg.Workers),
		collision.WithProbe(s.probe),
		collision.WithLogger(s.logger),
	)
	s.motion = NewMotionSystem(cfg.Bounds(), s.rng)
	s.collisions = NewCollisionSystem(detector, cfg.Policy)
	s.world.AddSystem(s.motion)
	s.world.AddSystem(s.collisions)

	s.SpawnRandom(cfg.Blobs.Count)
	return s, nil
}

// EventBus returns the bus simulation events are published on
func (s *Simulation) EventBus() *event.Bus {
	return s.eventBus
}

// Spawn adds a blob of the given motion kind at (x, y). Positions outside
// the world are rejected with quadtree.ErrOutOfBounds.
func (s *Simulation) Spawn(x, y float64, motion entity.Motion) (*entity.Blob, error) {
	bounds := s.Config.Bounds()
	if !bounds.Contains(x, y) {
		return nil, fmt.Errorf("spawn at (%g, %g) in %v: %w", x, y, bounds, quadtree.ErrOutOfBounds)
	}

	s.mu.Lock()
	b := s.addBlob(physics.Vector2D{X: x, Y: y}, motion)
	tick := s.currentTick
	s.mu.Unlock()

	s.eventBus.Publish(event.NewBlobEvent(event.BlobSpawned, s, b.ID(), b.Position, tick))
	return b, nil
}

// SpawnRandom adds n blobs of the configured motion kind at uniformly
// random positions
func (s *Simulation) SpawnRandom(n int) []*entity.Blob {
	bounds := s.Config.Bounds()

	s.mu.Lock()
	blobs := make([]*entity.Blob, 0, max(n, 0))
	for i := 0; i < n; i++ {
		pos := physics.Vector2D{
			X: bounds.X1 + s.rng.Float64()*bounds.Width(),
			Y: bounds.Y1 + s.rng.Float64()*bounds.Height(),
		}
		blobs = append(blobs, s.addBlob(pos, s.Config.Blobs.Motion))
	}
	tick := s.currentTick
	s.mu.Unlock()

	for _, b := range blobs {
		s.eventBus.Publish(event.NewBlobEvent(event.BlobSpawned, s, b.ID(), b.Position, tick))
	}
	return blobs
}

// SpawnBatch adds the configured batch of blobs at random positions
func (s *Simulation) SpawnBatch() []*entity.Blob {
	return s.SpawnRandom(s.Config.Blobs.Batch)
}

// addBlob must be called with mu held
func (s *Simulation) addBlob(pos physics.Vector2D, motion entity.Motion) *entity.Blob {
	b := entity.NewBlob(pos, s.Config.Blobs.Radius, motion, s.rng)
	s.motion.Add(b)
	s.collisions.Add(b)
	return b
}

// Blobs returns the live blobs in population order
func (s *Simulation) Blobs() []*entity.Blob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs := make([]*entity.Blob, len(s.collisions.entities))
	copy(blobs, s.collisions.entities)
	return blobs
}

// Tick moves every blob one step, then finds colliders and applies the
// active policy. An empty world skips detection.
func (s *Simulation) Tick(ctx context.Context) (*TickReport, error) {
	ctx = logging.WithCorrelationID(ctx, "")
	start := time.Now()

	s.mu.Lock()
	s.currentTick++
	s.lastTickAt = start
	tick := s.currentTick

	s.collisions.prepare(ctx)
	s.world.Update(1)
	outcome := s.collisions.take()

	if outcome.err != nil {
		s.lastResult = nil
		s.mu.Unlock()
		err := fmt.Errorf("tick %d: %w", tick, outcome.err)
		s.logger.Error(ctx, "collision detection failed", err, "tick", tick)
		return nil, err
	}

	for _, b := range outcome.removed {
		s.world.RemoveEntity(b.BasicEntity)
	}
	s.lastResult = outcome.result

	report := &TickReport{
		Tick:          tick,
		Removed:       len(outcome.removed),
		CorrelationID: logging.GetCorrelationID(ctx),
	}
	if r := outcome.result; r != nil {
		report.Blobs = r.Queries
		report.Colliders = r.Len()
		report.Pairs = len(r.Pairs)
		report.Depth = r.Depth
		report.Stats = r.Stats
	}
	for _, b := range s.collisions.entities {
		if b.Marked {
			report.Marked++
		}
	}
	report.Duration = time.Since(start)
	s.mu.Unlock()

	s.publishTick(report, outcome)
	s.logger.Debug(ctx, "tick completed",
		"tick", report.Tick,
		"blobs", report.Blobs,
		"colliders", report.Colliders,
		"removed", report.Removed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (s *Simulation) publishTick(report *TickReport, outcome detection) {
	if r := outcome.result; r != nil && len(r.Pairs) > 0 {
		ids := make(map[int]uint64, r.Len())
		for i, idx := range r.Indices {
			ids[idx] = r.Colliders[i].ID()
		}
		for _, p := range r.Pairs {
			s.eventBus.Publish(event.NewCollisionEvent(s, report.Tick, ids[p.A], ids[p.B]))
		}
	}
	for _, b := range outcome.removed {
		s.eventBus.Publish(event.NewBlobEvent(event.BlobRemoved, s, b.ID(), b.Position, report.Tick))
	}
	s.eventBus.Publish(event.NewTickEvent(s, report.Tick, report.Blobs, report.Colliders, report.Removed, report.Stats, report.Duration))
}

// Run ticks until ctx is cancelled or, when ticks > 0, until that many
// ticks have run. The delay between ticks follows Faster and Slower.
func (s *Simulation) Run(ctx context.Context, ticks int) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.eventBus.Publish(&event.BaseEvent{EventType: event.SimulationStarted, Source: s})
	defer s.eventBus.Publish(&event.BaseEvent{EventType: event.SimulationStopped, Source: s})

	delay := s.TickDelay()
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for n := 0; ticks <= 0 || n < ticks; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}

		if d := s.TickDelay(); d != delay {
			delay = d
			ticker.Reset(delay)
		}
	}
	return nil
}

// LastResult returns the detection result of the most recent tick, or nil
// when that tick had no blobs or failed
func (s *Simulation) LastResult() *collision.Result[*entity.Blob] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// Policy returns the active collision policy
func (s *Simulation) Policy() collision.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collisions.policy
}

// SetPolicy changes what happens to colliders from the next tick on
func (s *Simulation) SetPolicy(p collision.Policy) {
	s.mu.Lock()
	changed := s.collisions.policy != p
	s.collisions.policy = p
	s.mu.Unlock()

	if changed {
		s.eventBus.Publish(&event.BaseEvent{EventType: event.PolicyChanged, Source: p})
	}
}

// TickDelay returns the current delay between ticks in Run
func (s *Simulation) TickDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delay
}

// Faster halves the tick delay, down to one millisecond
func (s *Simulation) Faster() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delay > minTickDelay {
		s.delay = max(s.delay/2, minTickDelay)
	}
	return s.delay
}

// Slower doubles the tick delay
func (s *Simulation) Slower() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay *= 2
	return s.delay
}

// Running reports whether Run is active
func (s *Simulation) Running() bool {
	return s.running.Load()
}

// LastTickAt returns when the most recent tick started, or the zero time
func (s *Simulation) LastTickAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTickAt
}

// CurrentTick returns the number of ticks run so far
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTick
}

// Stats returns the geometry tests of all ticks so far
func (s *Simulation) Stats() physics.ProbeStats {
	return s.probe.Snapshot()
}
