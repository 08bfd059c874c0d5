// Package hub implements the bidirectional event channel between the
// launcher and the browser clients of running sessions.
//
// The channel rides on WebSocket connections served by the same HTTP
// server as the lifecycle endpoints. Three events flow over it:
//
//   - incoming session-connect: a browser has just opened its session URL
//   - incoming heartbeat-response: a browser replying to a broadcast
//   - outgoing heartbeat-request: broadcast to every connected client
//
// Clients are identified by the session URL carried in each payload, never
// by the transport connection - the same user may hold several tabs and a
// proxy may share connections, so no affinity is assumed.
//
// Concurrency follows the hub pattern: Run() owns the client set through
// register/unregister/broadcast channels, each client has a read pump and a
// write pump, and slow clients are evicted rather than allowed to block the
// broadcaster.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
	"github.com/yousefmoazzam/hebi-launcher/internal/metrics"
)

// Event names on the channel.
const (
	EventSessionConnect    = "session-connect"
	EventHeartbeatResponse = "heartbeat-response"
	EventHeartbeatRequest  = "heartbeat-request"
)

// Envelope is the JSON frame exchanged on the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientPayload is the data of an incoming activity event: the full URL of
// the session page the browser is showing.
type ClientPayload struct {
	Client string `json:"client"`
}

// heartbeatPayload is the data of an outgoing heartbeat-request.
type heartbeatPayload struct {
	Data string `json:"data"`
}

// ActivityFunc receives the session URL of each incoming activity event.
type ActivityFunc func(sessionURL string)

// Hub maintains the active event channel connections.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// onActivity absorbs session-connect and heartbeat-response events.
	onActivity ActivityFunc
}

// Client is one WebSocket connection on the channel.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub whose incoming activity events are handed to
// onActivity.
func NewHub(onActivity ActivityFunc) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		onActivity: onActivity,
	}
}

// Run owns the client set. Start it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.ConnectedClients.Set(float64(total))
			logger.Heartbeat().Debug().Int("total", total).Msg("Event channel client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.ConnectedClients.Set(float64(total))
			logger.Heartbeat().Debug().Int("total", total).Msg("Event channel client unregistered")

		case message := <-h.broadcast:
			h.mu.RLock()
			slow := make([]*Client, 0)
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			// Evict clients whose send buffer is full so they cannot
			// stall future broadcasts.
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// BroadcastHeartbeat emits a heartbeat-request to every connected client.
func (h *Hub) BroadcastHeartbeat() {
	data, _ := json.Marshal(heartbeatPayload{Data: "Are you active?"})
	frame, _ := json.Marshal(Envelope{Event: EventHeartbeatRequest, Data: data})
	h.broadcast <- frame
	metrics.HeartbeatsBroadcast.Inc()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleEvent dispatches one incoming frame. Split out of the read pump so
// tests can drive it without a live connection.
func (h *Hub) HandleEvent(frame []byte) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		logger.Heartbeat().Warn().Err(err).Msg("Unparseable event channel frame")
		return
	}

	switch envelope.Event {
	case EventSessionConnect, EventHeartbeatResponse:
		var payload ClientPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			logger.Heartbeat().Warn().Err(err).Str("event", envelope.Event).Msg("Unparseable activity payload")
			return
		}
		metrics.HeartbeatResponses.Inc()
		h.onActivity(payload.Client)
	default:
		logger.Heartbeat().Debug().Str("event", envelope.Event).Msg("Ignoring unknown event")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The launcher web app and the session pages live on the same host as
	// the launcher; cross-origin upgrades are tolerated because the token
	// cookie still gates the lifecycle endpoints.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades a request onto the event channel.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Heartbeat().Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump pumps broadcasts from the hub to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps incoming frames from the connection into HandleEvent.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Heartbeat().Warn().Err(err).Msg("Event channel read error")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.hub.HandleEvent(message)
	}
}
