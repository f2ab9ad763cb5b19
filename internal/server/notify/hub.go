// Package notify fans server events out to students' open websocket
// streams. Delivery is best effort: a slow connection drops events rather
// than blocking ingest.
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Publisher delivers an event to every stream owned by studentID.
type Publisher interface {
	Publish(studentID string, ev api.Event)
}

type Hub struct {
	logger     logging.Logger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	pingPeriod time.Duration

	mu      sync.Mutex
	clients map[string]map[*conn]struct{}
	closed  bool
}

type conn struct {
	ws        *websocket.Conn
	studentID string
	send      chan api.Event
}

// NewHub returns a hub that pings every connection each pingPeriod and
// drops those that do not answer within two periods.
func NewHub(logger logging.Logger, m *metrics.Metrics, pingPeriod time.Duration) *Hub {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	return &Hub{
		logger:     logger.With("module", "notify"),
		metrics:    m,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			// Clients are native programs authenticated by bearer token,
			// not browsers, so there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[string]map[*conn]struct{}{},
	}
}

// ServeWS upgrades the request and serves the stream for studentID until
// the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, studentID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws, studentID: studentID, send: make(chan api.Event, sendBuffer)}
	hello, _ := api.NewEvent(api.EventConnected, api.ConnectedData{StudentID: studentID})
	c.send <- hello

	if !h.register(c) {
		_ = ws.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.studentID]
	if !ok {
		set = map[*conn]struct{}{}
		h.clients[c.studentID] = set
	}
	set[c] = struct{}{}
	h.metrics.StreamOpened()
	return true
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.studentID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.studentID)
	}
	close(c.send)
	h.metrics.StreamClosed()
}

// Publish implements Publisher.
func (h *Hub) Publish(studentID string, ev api.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[studentID] {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn(context.Background(), "stream buffer full, event dropped",
				"student_id", studentID, "type", ev.Type)
		}
	}
}

// Connections returns the number of open streams for studentID.
func (h *Hub) Connections(studentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[studentID])
}

// Close ends every stream and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*conn
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) readPump(c *conn) {
	defer func() {
		h.unregister(c)
		_ = c.ws.Close()
	}()

	pongWait := 2 * h.pingPeriod
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(context.Background(), "stream closed", "student_id", c.studentID, "error", err)
			}
			return
		}

		var ev api.Event
		if err := api.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type == api.EventPong {
			_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		var ev api.Event
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			ev = msg
		case <-ticker.C:
			ev, _ = api.NewEvent(api.EventPing, nil)
		}

		data, err := api.Marshal(ev)
		if err != nil {
			continue
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
