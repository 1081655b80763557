package webservice

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/substation_twin/internal/pkg/msg"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the websocket wire format.
type Envelope struct {
	Type string      `json:"Type"` // "telemetry" or "alert"
	Data interface{} `json:"Data"`
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub broadcasts every published message to connected websocket clients. It is a
// datastreams.Writer; slow clients drop messages.
type Hub struct {
	mux     *sync.RWMutex
	clients map[uuid.UUID]*wsClient
	closed  bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		mux:     &sync.RWMutex{},
		clients: make(map[uuid.UUID]*wsClient),
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mux.RLock()
	defer h.mux.RUnlock()
	return len(h.clients)
}

// Write broadcasts m to every client.
func (h *Hub) Write(m msg.Msg) error {
	body, err := json.Marshal(Envelope{Type: m.Topic().String(), Data: m.Payload()})
	if err != nil {
		return err
	}
	h.mux.RLock()
	defer h.mux.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- body:
		default:
		}
	}
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mux.Lock()
	defer h.mux.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
	return nil
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Webservice] websocket upgrade failed: %v\n", err)
		return
	}
	c := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mux.Lock()
	if h.closed {
		h.mux.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mux.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mux.Lock()
	delete(h.clients, c.id)
	h.mux.Unlock()
	c.close()
}

// readPump discards client input and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case body := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				h.remove(c)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
