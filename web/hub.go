package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans JSON events out to every connected websocket client. Register,
// unregister and broadcast all go through channels owned by Run.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{} // closed when Run returns
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				_ = c.Close()
			}
			for {
				select {
				case c := <-h.register:
					_ = c.Close()
				default:
					return
				}
			}

		case c := <-h.register:
			h.clients[c] = struct{}{}
			slog.Debug("Websocket client connected", "remote", c.RemoteAddr().String(), "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				_ = c.Close()
			}

		case msg := <-h.broadcast:
			h.writeAll(websocket.TextMessage, msg, 3*time.Second)

		case <-ping.C:
			h.writeAll(websocket.PingMessage, nil, 2*time.Second)
		}
	}
}

func (h *Hub) writeAll(kind int, msg []byte, deadline time.Duration) {
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(deadline))
		if err := c.WriteMessage(kind, msg); err != nil {
			delete(h.clients, c)
			_ = c.Close()
		}
	}
}

// Handler upgrades the request and keeps reading until the client goes away.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		select {
		case <-h.done:
			_ = conn.Close()
			return
		default:
		}
		select {
		case h.register <- conn:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go func() {
			defer func() {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
			}()
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				return nil
			})

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// BroadcastJSON queues v for every client. It drops the message rather
// than block when the queue is full.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode websocket event", "error", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		slog.Warn("Websocket queue full, dropping event")
	}
}
