package api

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/user/chatpilot/internal/pipeline"
)

const (
	writeTimeout = 5 * time.Second
	outboundSize = 64
)

// Frame is the envelope written to websocket clients.
type Frame struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type wsConn struct {
	id          string
	ws          *websocket.Conn
	out         chan Frame
	done        chan struct{}
	connectedAt time.Time
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:          "conn_" + uuid.NewString(),
		ws:          ws,
		out:         make(chan Frame, outboundSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// enqueue hands f to the writer without blocking. Returns false when the
// client's buffer is full and the frame was dropped.
func (c *wsConn) enqueue(f Frame) bool {
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

// writePump is the connection's only writer once registered. A failed write
// closes the socket, which ends the read loop in serveWS.
func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(f); err != nil {
				slog.Warn("realtime write failed", "conn", c.id, "error", err)
				c.ws.Close()
				return
			}
		}
	}
}

// Hub fans pipeline events out to every connected websocket client. It
// implements pipeline.EventSink.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*wsConn
	seq   atomic.Int64
}

// NewHub creates a Hub accepting upgrades from allowedOrigins. An empty list
// or "*" accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		conns: make(map[string]*wsConn),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Publish queues e for every client and returns without waiting on the
// network. A client whose buffer is full misses the frame.
func (h *Hub) Publish(e pipeline.Event) {
	f := Frame{Type: "event", Event: e.Type, Seq: h.seq.Add(1), Payload: e}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if !c.enqueue(f) {
			slog.Warn("dropping realtime frame, client buffer full", "conn", c.id, "event", e.Type)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

// serveWS upgrades the request and keeps the connection registered until the
// client goes away. Client messages are read and discarded.
func (h *Hub) serveWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	conn := newWSConn(ws)
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(Frame{Type: "hello", Payload: gin.H{"conn_id": conn.id}}); err != nil {
		return
	}
	h.add(conn)
	defer func() {
		h.remove(conn.id)
		close(conn.done)
	}()
	go conn.writePump()
	slog.Info("realtime client connected", "conn", conn.id, "remote", c.ClientIP())

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			slog.Debug("realtime client disconnected", "conn", conn.id, "error", err)
			return
		}
	}
}
