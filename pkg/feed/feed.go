// Package feed streams simulation events to websocket watchers as JSON
// messages, one per event.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-collider/pkg/event"
	"github.com/opd-ai/go-collider/pkg/logging"
	"github.com/opd-ai/go-collider/pkg/physics"
)

const (
	// DefaultBuffer is the number of messages queued per watcher before
	// further messages to that watcher are dropped.
	DefaultBuffer = 64

	writeWait = 5 * time.Second
)

// AllTypes lists every event type a Hub forwards by default.
var AllTypes = []event.Type{
	event.SimulationStarted,
	event.SimulationStopped,
	event.TickCompleted,
	event.CollisionDetected,
	event.BlobSpawned,
	event.BlobRemoved,
	event.PolicyChanged,
}

// Message is the JSON form of a simulation event.
type Message struct {
	Type       event.Type          `json:"type"`
	Tick       uint64              `json:"tick,omitempty"`
	Blobs      int                 `json:"blobs,omitempty"`
	Colliders  int                 `json:"colliders,omitempty"`
	Removed    int                 `json:"removed,omitempty"`
	Stats      *physics.ProbeStats `json:"stats,omitempty"`
	DurationUs int64               `json:"duration_us,omitempty"`
	BlobID     uint64              `json:"blob_id,omitempty"`
	BlobA      uint64              `json:"blob_a,omitempty"`
	BlobB      uint64              `json:"blob_b,omitempty"`
	X          *float64            `json:"x,omitempty"`
	Y          *float64            `json:"y,omitempty"`
	Policy     string              `json:"policy,omitempty"`
}

// NewMessage converts e into its wire form.
func NewMessage(e event.Event) Message {
	msg := Message{Type: e.GetType()}
	switch ev := e.(type) {
	case *event.TickEvent:
		stats := ev.Stats
		msg.Tick = ev.Tick
		msg.Blobs = ev.Blobs
		msg.Colliders = ev.Colliders
		msg.Removed = ev.Removed
		msg.Stats = &stats
		msg.DurationUs = ev.Duration.Microseconds()
	case *event.CollisionEvent:
		msg.Tick = ev.Tick
		msg.BlobA = ev.BlobA
		msg.BlobB = ev.BlobB
	case *event.BlobEvent:
		x, y := ev.Position.X, ev.Position.Y
		msg.Tick = ev.Tick
		msg.BlobID = ev.BlobID
		msg.X, msg.Y = &x, &y
	default:
		if s, ok := e.GetSource().(fmt.Stringer); ok && e.GetType() == event.PolicyChanged {
			msg.Policy = s.String()
		}
	}
	return msg
}

type watcher struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events from a bus out to every connected websocket watcher.
// Watchers that fall behind lose messages rather than stall the publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger
	buffer   int
	types    []event.Type

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	subs     []*event.Subscription
	dropped  uint64
	closed   bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithBuffer sets the per-watcher queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithTypes restricts the forwarded event types.
func WithTypes(types ...event.Type) Option {
	return func(h *Hub) {
		h.types = types
	}
}

// NewHub subscribes to bus and returns a hub ready to serve watchers.
func NewHub(bus *event.Bus, opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		buffer:   DefaultBuffer,
		types:    AllTypes,
		watchers: make(map[*watcher]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.NewLogger()
	}

	for _, t := range h.types {
		h.subs = append(h.subs, bus.Subscribe(t, h.broadcast))
	}
	return h
}

func (h *Hub) broadcast(e event.Event) {
	data, err := json.Marshal(NewMessage(e))
	if err != nil {
		h.logger.Error(context.Background(), "encode feed message", err, "type", e.GetType())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		select {
		case w.send <- data:
		default:
			h.dropped++
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams events to it
// until either side closes.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := logging.WithCorrelationID(r.Context(), "")

	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", "error", err.Error(), "remote", r.RemoteAddr)
		return
	}

	w := &watcher{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.add(w) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Info(ctx, "watcher connected", "remote", r.RemoteAddr)

	go h.writeLoop(w)

	// incoming messages are ignored; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(w)
	conn.Close()
	h.logger.Info(ctx, "watcher disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(w *watcher) {
	for data := range w.send {
		w.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			w.conn.Close()
			return
		}
	}
}

func (h *Hub) add(w *watcher) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.watchers[w] = struct{}{}
	return true
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; ok {
		delete(h.watchers, w)
		close(w.send)
	}
}

// Watchers returns the number of connected watchers.
func (h *Hub) Watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Dropped returns how many messages were discarded for slow watchers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close unsubscribes from the bus and disconnects every watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.closed = true
	for w := range h.watchers {
		delete(h.watchers, w)
		close(w.send)
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
			time.Now().Add(writeWait))
		w.conn.Close()
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}
