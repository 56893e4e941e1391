package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	clientSendBuf  = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // CORS is enforced at the HTTP layer, not here
}

// client is one live websocket connection and its subscriptions.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	roomID string
	userID string
}

// Hub is the production Broadcaster: an RWMutex guards the topic
// registries, and clients each run their own write pump reading from a
// buffered channel so a single slow socket cannot back-pressure the
// publisher.
type Hub struct {
	log *logrus.Entry

	mu          sync.RWMutex
	roomClients map[string]map[*client]bool
	userClients map[string]map[*client]bool
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:         log.WithField("component", "realtime_hub"),
		roomClients: map[string]map[*client]bool{},
		userClients: map[string]map[*client]bool{},
	}
}

// Upgrade promotes an HTTP request to a websocket connection and
// registers it under the given room and user topics until it
// disconnects. Blocks until the connection closes; call it from its
// own goroutine per request (chi's handler goroutine is fine).
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, roomID, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, clientSendBuf), roomID: roomID, userID: userID}

	h.register(c)
	defer h.unregister(c)

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.roomClients[c.roomID] == nil {
		h.roomClients[c.roomID] = map[*client]bool{}
	}
	h.roomClients[c.roomID][c] = true
	if h.userClients[c.userID] == nil {
		h.userClients[c.userID] = map[*client]bool{}
	}
	h.userClients[c.userID][c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set := h.roomClients[c.roomID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.roomClients, c.roomID)
		}
	}
	if set := h.userClients[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.userClients, c.userID)
		}
	}
	h.mu.Unlock()
	close(c.send)
	_ = c.conn.Close()
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Clients do not send game actions over the socket; the HTTP
		// API is authoritative. Inbound frames only keep the
		// connection's read deadline alive.
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) PublishRoom(_ context.Context, roomID string, env Envelope) {
	raw, err := encode(env)
	if err != nil {
		h.log.WithError(err).Error("failed to encode room envelope")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.roomClients[roomID] {
		h.trySend(c, raw)
	}
}

func (h *Hub) PublishUser(_ context.Context, userID string, env Envelope) {
	raw, err := encode(env)
	if err != nil {
		h.log.WithError(err).Error("failed to encode user envelope")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.userClients[userID] {
		h.trySend(c, raw)
	}
}

func (h *Hub) trySend(c *client, raw []byte) {
	select {
	case c.send <- raw:
	default:
		h.log.WithField("user_id", c.userID).Warn("client send buffer full, dropping connection")
		go func() { _ = c.conn.Close() }()
	}
}
