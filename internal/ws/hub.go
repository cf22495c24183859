package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/observability"
	"messaging-service/internal/realtime"
)

// ConnInfo describes one subscribed connection: who it belongs to and the
// correlation identifiers captured at upgrade time.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// subscriber pairs a connection with its info and a write lock. gorilla
// connections support at most one concurrent writer, and publishes arrive
// from many request goroutines at once.
type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
	info ConnInfo
}

func (s *subscriber) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains active websocket subscriptions keyed by channel name. It
// implements realtime.Broker so in-process clients receive the same
// envelopes that go out over Redis.
type Hub struct {
	channels map[string]map[*websocket.Conn]*subscriber
	mu       sync.RWMutex
	events   *observability.EventsEmitter
}

// NewHub creates an empty hub.
func NewHub(events *observability.EventsEmitter) *Hub {
	return &Hub{
		channels: make(map[string]map[*websocket.Conn]*subscriber),
		events:   events,
	}
}

// Add registers a websocket connection on a channel.
func (h *Hub) Add(channel string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*websocket.Conn]*subscriber)
	}
	h.channels[channel][conn] = &subscriber{conn: conn, info: info}
}

// Remove unregisters a websocket connection from a channel.
func (h *Hub) Remove(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[channel]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Subscribers reports how many connections are on a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Publish delivers the event envelope to every connection on the channel.
func (h *Hub) Publish(ctx context.Context, channel string, event string, data any) error {
	payload, err := json.Marshal(realtime.Event{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.channels[channel]))
	for _, sub := range h.channels[channel] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	kind := channelKind(channel)
	for _, sub := range subs {
		if err := sub.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			sub.conn.Close()
			h.Remove(channel, sub.conn)
			observability.IncWSEvent(kind, "ws_error")
			h.emitWSEvent(ctx, kind, channel, "ws_error", sub.info, err.Error())
		}
	}
	return nil
}

// Close drops every connection.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, conns := range h.channels {
		for conn := range conns {
			conn.Close()
		}
		delete(h.channels, channel)
	}
	return nil
}

func (h *Hub) emitWSEvent(ctx context.Context, kind, channel, event string, info ConnInfo, reason string) {
	_ = h.events.Emit(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   wsEventPayload(kind, channel, event, info, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsEventPayload(kind, channel, event string, info ConnInfo, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"channel":     channel,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
