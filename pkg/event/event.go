// pkg/event/event.go
package event

import (
	"sync"
	"time"

	"github.com/opd-ai/go-collider/pkg/physics"
)

// Type represents the type of event
type Type string

// Simulation event types
const (
	SimulationStarted Type = "simulation_started"
	SimulationStopped Type = "simulation_stopped"
	TickCompleted     Type = "tick_completed"
	CollisionDetected Type = "collision_detected"
	BlobSpawned       Type = "blob_spawned"
	BlobRemoved       Type = "blob_removed"
	PolicyChanged     Type = "policy_changed"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription identifies a registered handler. Cancel removes it.
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]subscriber
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]subscriber),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Type:   eventType,
		Cancel: func() { b.unsubscribe(eventType, id) },
	}
}

// Unsubscribe removes the handler registered by sub. It is safe to call
// more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.unsubscribe(sub.Type, sub.ID)
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			// copy so a Publish iterating the old slice is not disturbed
			remaining := make([]subscriber, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			b.handlers[eventType] = append(remaining, subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// Publish sends an event to all subscribed handlers, in subscription order,
// on the calling goroutine.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Specific event implementations

// BlobEvent reports a blob entering or leaving the simulation.
type BlobEvent struct {
	BaseEvent
	BlobID   uint64
	Position physics.Vector2D
	Tick     uint64
}

// NewBlobEvent creates a new blob event
func NewBlobEvent(eventType Type, source interface{}, blobID uint64, pos physics.Vector2D, tick uint64) *BlobEvent {
	return &BlobEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		BlobID:   blobID,
		Position: pos,
		Tick:     tick,
	}
}

// CollisionEvent reports two blobs found in proximity during a tick
type CollisionEvent struct {
	BaseEvent
	Tick  uint64
	BlobA uint64
	BlobB uint64
}

// NewCollisionEvent creates a new collision event
func NewCollisionEvent(source interface{}, tick, blobA, blobB uint64) *CollisionEvent {
	return &CollisionEvent{
		BaseEvent: BaseEvent{
			EventType: CollisionDetected,
			Source:    source,
		},
		Tick:  tick,
		BlobA: blobA,
		BlobB: blobB,
	}
}

// TickEvent summarises one completed tick
type TickEvent struct {
	BaseEvent
	Tick      uint64
	Blobs     int
	Colliders int
	Removed   int
	Stats     physics.ProbeStats
	Duration  time.Duration
}

// NewTickEvent creates a new tick event
func NewTickEvent(source interface{}, tick uint64, blobs, colliders, removed int, stats physics.ProbeStats, d time.Duration) *TickEvent {
	return &TickEvent{
		BaseEvent: BaseEvent{
			EventType: TickCompleted,
			Source:    source,
		},
		Tick:      tick,
		Blobs:     blobs,
		Colliders: colliders,
		Removed:   removed,
		Stats:     stats,
		Duration:  d,
	}
}
