package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kb1sig/ic705scanner/internal/obs"
)

// websocketPayload is the JSON message broadcast to every connected
// client for each detection.
type websocketPayload struct {
	Type        string  `json:"type"`
	Callsign    string  `json:"callsign"`
	FrequencyHz uint64  `json:"frequency_hz"`
	Timestamp   string  `json:"timestamp"`
	DurationMs  int64   `json:"duration_ms"`
	Confidence  float64 `json:"confidence"`
	Text        string  `json:"text,omitempty"`
}

const writeTimeout = 5 * time.Second

// WebSocketHub fans a detection out to any connected "what's on the
// air" dashboard clients, broadcasting JSON messages. A
// register/unregister/broadcast channel triad feeds the set of live
// connections, rather than locking a shared map directly from arbitrary
// goroutines.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	log      logger

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	done chan struct{}
}

// NewWebSocketHub creates a hub and starts its run loop. Call
// ServeHTTP to accept connections on a net/http mux, and Close to stop
// the hub and close every connection.
func NewWebSocketHub() *WebSocketHub {
	h := &WebSocketHub{
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:        obs.For("notify.ws"),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 16),
		clients:    map[*websocket.Conn]struct{}{},
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *WebSocketHub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				_ = conn.Close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Warnf("write to client failed, dropping: %v", err)
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}
			h.mu.Unlock()
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
			}
			h.clients = nil
			h.mu.Unlock()
			return
		}
	}
}

// ServeHTTP upgrades the connection and registers it with the hub.
// Connecting is optional and a failed upgrade is logged, never fatal.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade failed: %v", err)
		return
	}
	h.register <- conn
	go func() {
		// Drain and discard anything the client sends; we only care
		// about detecting its disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister <- conn
				return
			}
		}
	}()
}

// SendActivity broadcasts the detection to every connected client.
func (h *WebSocketHub) SendActivity(a DetectedActivity) {
	payload := websocketPayload{
		Type:        "activity",
		Callsign:    a.Callsign,
		FrequencyHz: a.FrequencyHz,
		Timestamp:   a.Timestamp.UTC().Format(time.RFC3339),
		DurationMs:  a.Duration.Milliseconds(),
		Confidence:  a.Confidence,
		Text:        a.Text,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorf("marshal: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warnf("broadcast queue full, dropping detection")
	}
}

// Close stops the hub's run loop and closes every connected client.
func (h *WebSocketHub) Close() {
	close(h.done)
}
