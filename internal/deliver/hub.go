// Package deliver fans finished commentary lines out to listeners: the
// in-process hub for live consumers, Kafka for downstream systems, and
// the Postgres transcript archive.
package deliver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/caster/internal/domain"
)

// Line is the payload pushed to every subscriber when a commentary line
// is spoken.
type Line struct {
	EventID  uuid.UUID        `json:"event_id"`
	Kind     domain.EventKind `json:"kind"`
	Priority string           `json:"priority"`
	Text     string           `json:"text"`
	SpokenAt time.Time        `json:"spoken_at"`
}

// Subscriber receives lines for one stream. Send is buffered; a full
// buffer drops the line for that subscriber rather than blocking the hub.
type Subscriber struct {
	ID   string
	Send chan []byte
}

// Hub manages stream-scoped subscribers and line fan-out.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]*Subscriber // stream -> subID -> sub
	logger  *slog.Logger
}

// NewHub creates a hub with no subscribers.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		streams: make(map[string]map[string]*Subscriber),
		logger:  logger,
	}
}

// Join adds a subscriber to a stream (typically "match:{id}").
func (h *Hub) Join(stream string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[stream] == nil {
		h.streams[stream] = make(map[string]*Subscriber)
	}
	h.streams[stream][sub.ID] = sub
}

// Leave removes a subscriber from a stream.
func (h *Hub) Leave(stream, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.streams[stream]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.streams, stream)
		}
	}
}

// Publish sends a line to every subscriber of the stream.
func (h *Hub) Publish(stream string, line Line) {
	payload, err := json.Marshal(line)
	if err != nil {
		h.logger.Error("line marshal error", "error", err, "stream", stream, "event_id", line.EventID)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.streams[stream]
	if !ok {
		return
	}
	for _, sub := range subs {
		select {
		case sub.Send <- payload:
		default:
			h.logger.Warn("subscriber buffer full, line dropped", "sub_id", sub.ID, "stream", stream)
		}
	}
}

// SubscriberCount returns the total number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subs := range h.streams {
		count += len(subs)
	}
	return count
}

// StreamCount returns the number of streams with at least one subscriber.
func (h *Hub) StreamCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

// Shutdown closes all subscriber channels.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for stream, subs := range h.streams {
		for _, sub := range subs {
			close(sub.Send)
		}
		delete(h.streams, stream)
	}
}
