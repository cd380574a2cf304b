package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientBuffer   = 256
	maxMessageSize = 512
)

// wsMessage is the wire shape of every push-channel message.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub is the websocket fan-out for browser clients. It implements Sink.
type Hub struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*wsClient
	closed  bool
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The panel UI may be served from a different origin in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*wsClient),
	}
}

// HandleWS upgrades an HTTP request to a push-channel connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"client": c.id, "clients": n}).Info("push client connected")

	go h.writePump(c)
	go h.readPump(c)

	h.Publish(EventStatus, StatusNotice{Message: "connected to server"})
}

// Publish implements Sink. Slow clients are dropped rather than allowed to
// stall the reader pipeline.
func (h *Hub) Publish(event string, payload interface{}) {
	body, err := json.Marshal(wsMessage{Event: event, Data: payload})
	if err != nil {
		h.log.WithError(err).Error("marshal push event")
		return
	}

	h.mu.Lock()
	for id, c := range h.clients {
		select {
		case c.send <- body:
		default:
			delete(h.clients, id)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected push clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
	return nil
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Inbound messages are ignored; reading only services control
		// frames and detects the peer going away.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("client", c.id).Debug("push client read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
