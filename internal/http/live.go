package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"wyoming-stt-bridge/internal/observability/metrics"
)

const (
	broadcastBuffer = 100
	writeWait       = 5 * time.Second
)

// LiveMessage is the frame sent to live transcript subscribers.
type LiveMessage struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// Hub fans published transcript events out to WebSocket subscribers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan LiveMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
}

// NewHub creates a hub. Run must be called for it to deliver anything.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan LiveMessage, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		metrics:    m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run delivers events until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				h.drop(conn)
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.metrics.LiveSubscribers.Set(float64(len(h.clients)))
			log.Debug().Int("subscribers", len(h.clients)).Msg("Live subscriber connected")

		case conn := <-h.unregister:
			if h.clients[conn] {
				h.drop(conn)
				log.Debug().Int("subscribers", len(h.clients)).Msg("Live subscriber disconnected")
			}

		case msg := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug().Err(err).Msg("Live subscriber write failed")
					h.drop(conn)
				}
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	delete(h.clients, conn)
	conn.Close()
	h.metrics.LiveSubscribers.Set(float64(len(h.clients)))
}

// Broadcast queues an event for subscribers. Events are dropped when the
// queue is full so publishers never block on slow subscribers.
func (h *Hub) Broadcast(eventType string, payload []byte) {
	msg := LiveMessage{Type: eventType, Event: json.RawMessage(payload)}
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Str("type", eventType).Msg("Live feed queue full, dropping event")
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()
}
