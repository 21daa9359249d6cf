// Package alerts fans out change notifications to connected websocket
// clients. Alerts are also forwarded to the twin store inbox; the hub
// only covers live listeners.
package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sitewatch/sitewatch/internal/vision"
)

// Alert is the payload broadcast when an upload overwrote a matched
// record with a major change.
type Alert struct {
	CameraID       string          `json:"camera_id"`
	RecordID       int64           `json:"record_id"`
	ThingID        string          `json:"thing_id"`
	Reason         string          `json:"reason"`
	Caption        string          `json:"caption,omitempty"`
	ImageURL       string          `json:"image_url"`
	DistanceMeters float64         `json:"distance_m"`
	Objects        []vision.Object `json:"objects,omitempty"`
}

type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run pumps the hub until ctx is cancelled. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("alert client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("alert client disconnected", "total", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("dropping alert client", "error", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// Publish serializes the alert and queues it for all connected clients.
// It never blocks the caller on slow consumers.
func (h *Hub) Publish(alert Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		h.logger.Error("marshal alert", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("alert broadcast queue full, dropping", "camera_id", alert.CameraID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
