// Package wsbus implements the job-status push surface (A5, SPEC_FULL.md
// §4.6): a thin observability convenience broadcasting
// {job_id, state, retry, detail} each time the executor persists a status
// transition. It is never a substitute for C9's polling contract and never
// carries intermediate LLM tokens (still a Non-goal per spec.md §1).
//
// Adapted from the teacher's internal/websocket.Hub: same single-active-
// client register/unregister/broadcast channel shape, generalized from
// relaying raw HTTP exchange bytes to relaying typed JobStatusEvent values.
package wsbus

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JobStatusEvent is the broadcast payload SPEC_FULL.md §4.6 names.
type JobStatusEvent struct {
	JobID  string         `json:"job_id"`
	State  store.JobState `json:"state"`
	Retry  int            `json:"retry"`
	Detail string         `json:"detail,omitempty"`
}

// Hub manages one active websocket connection and fans job-status events
// out to it.
type Hub struct {
	logger *zap.Logger

	client     *client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub constructs a Hub. Run must be called (typically in its own
// goroutine) before ServeWS or Broadcast have any effect.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Run drives the hub's register/unregister/broadcast loop until ctx-driven
// shutdown is wired in by the caller (there is at most one process-lifetime
// Hub, so callers typically just `go hub.Run()` and let it live for the
// process's duration, mirroring the teacher's Hub.Run).
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.client != nil {
				close(h.client.send)
			}
			h.client = c
			h.mu.Unlock()
			h.logger.Info("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.client == c {
				close(h.client.send)
				h.client = nil
				h.logger.Info("websocket client disconnected")
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if h.client != nil {
				select {
				case h.client.send <- msg:
				default:
					h.logger.Warn("websocket client send buffer full, closing")
					close(h.client.send)
					h.client = nil
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast publishes a JobStatusEvent to the active client, if any.
func (h *Hub) Broadcast(event JobStatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal job status event", zap.Error(err))
		return
	}

	h.mu.RLock()
	hasClient := h.client != nil
	h.mu.RUnlock()
	if !hasClient {
		return
	}
	h.broadcast <- data
}

// ServeWS upgrades the request to a websocket connection and registers it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		msg, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// HandlerFunc adapts ServeWS to gin's handler signature without importing
// gin here, keeping wsbus usable from a plain net/http mux too.
func (h *Hub) HandlerFunc() func(w http.ResponseWriter, r *http.Request) {
	return h.ServeWS
}
