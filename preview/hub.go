// Package preview streams the mirrored preview to local viewers over
// websocket.
package preview

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = time.Second

// Hub fans PNG frames out to every connected websocket client.
type Hub struct {
	upgrader websocket.Upgrader
	writeMu  sync.Mutex // gorilla 连接不允许并发写
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	last     []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 本地预览，允许任意来源
			},
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeWS upgrades the request and registers the client. The latest frame,
// if any, is sent right away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade preview connection: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	last := h.last
	h.mu.Unlock()

	if last != nil {
		h.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.BinaryMessage, last)
		h.writeMu.Unlock()
		if err != nil {
			h.drop(conn)
			return
		}
	}

	// 读循环只用来发现断开
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends frame to every client, dropping the ones that fail.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	h.last = frame
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Printf("Dropping preview client: %v", err)
			h.drop(c)
		}
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(c *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.Close()
	}
}
