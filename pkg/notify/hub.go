// Package notify delivers realtime and email notifications. Every route or
// delivery-request status change is pushed to the affected user's websocket
// connections; selected events also go out by email. Both paths are
// fire-and-forget: failures are logged and never block a lifecycle operation.
package notify

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Event is a server-push message about a status change.
type Event struct {
	Type              string `json:"type"` // delivery_request_status, scheduled_route_status
	RouteID           string `json:"route_id,omitempty"`
	DeliveryRequestID string `json:"delivery_request_id,omitempty"`
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
}

// Publisher is the narrow interface services use to emit events.
type Publisher interface {
	Publish(userID string, ev Event)
}

// Hub tracks connected websocket clients keyed by user id.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

var upgrader = websocket.Upgrader{}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// Publish sends the event to every open connection of the user. Dead
// connections are dropped on write failure.
func (h *Hub) Publish(userID string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("notify: marshal event: %v", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for conn := range h.conns[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(userID, conn)
			conn.Close()
		}
	}
}

func (h *Hub) add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
}

func (h *Hub) remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// HandleSubscribe upgrades the request to a websocket and keeps the
// connection registered until the client goes away. The read loop only
// drains control frames; the server never expects client messages.
func (h *Hub) HandleSubscribe(c echo.Context) error {
	userID, _ := c.Get("userID").(string)
	if userID == "" {
		return echo.ErrUnauthorized
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	h.add(userID, conn)
	defer func() {
		h.remove(userID, conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
