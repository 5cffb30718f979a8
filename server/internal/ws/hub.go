package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ludisdb/ludis/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Event names carried in Message.Event.
const (
	EventSubscribed = "subscribed"
	EventMessage    = "message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,

	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Key   string `json:"key"`
	Data  string `json:"data,omitempty"`
}

// Hub serves per-key subscription streams over WebSocket and tracks the
// connected clients.
type Hub struct {
	store   *store.Store
	sendBuf int

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one connected WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	sub  *store.Subscription
	send chan []byte

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Hub that subscribes clients on st. sendBuf is the per-client
// outgoing queue depth.
func New(st *store.Store, sendBuf int) *Hub {
	if sendBuf < 1 {
		sendBuf = 1
	}
	return &Hub{
		store:   st,
		sendBuf: sendBuf,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP handles GET /ws/subscribe?key=k. It upgrades the connection,
// subscribes to k and forwards every value published on k until either side
// closes. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"key is required"}` + "\n")) //nolint:errcheck
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		sub:  h.store.Subscribe([]byte(key)),
		send: make(chan []byte, h.sendBuf),
		done: make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	// Tell the client the subscription is live before any publish can race it.
	if data, err := json.Marshal(Message{Event: EventSubscribed, Key: key}); err == nil {
		c.send <- data
	}

	go c.writePump()
	go c.forward()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.stop()
	c.sub.Close()
	if n := c.sub.Lagged(); n > 0 {
		slog.Debug("ws: subscriber dropped messages", "key", string(c.sub.Key()), "lagged", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.stop()
		delete(h.clients, c)
	}
}

func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// forward copies published values from the subscription to the client's
// send queue. A full queue blocks forward, so backpressure lands on the
// subscription buffer, which counts what it has to drop.
func (c *client) forward() {
	key := string(c.sub.Key())
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.sub.C():
			if !ok {
				// The store closed the subscription.
				c.stop()
				return
			}
			data, err := json.Marshal(Message{Event: EventMessage, Key: key, Data: string(msg)})
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			case <-c.done:
				return
			}
		}
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
