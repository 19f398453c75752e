package websocket

import (
	"sync"

	"medquest/internal/logger"
	"medquest/models"

	"github.com/gorilla/websocket"
)

// GamificationClient is one connection subscribed to a user's XP events.
type GamificationClient struct {
	Conn    *websocket.Conn
	UserID  string
	writeMu sync.Mutex
}

// SafeWriteJSON serializes writes; gorilla connections allow one writer at a time.
func (gc *GamificationClient) SafeWriteJSON(v interface{}) error {
	gc.writeMu.Lock()
	defer gc.writeMu.Unlock()
	return gc.Conn.WriteJSON(v)
}

// Hub fans GamificationEvents out to the connections of the user they belong to.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*GamificationClient]struct{}
	log     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*GamificationClient]struct{}),
		log:     log.With("component", "ws"),
	}
}

func (h *Hub) Register(client *GamificationClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		set = make(map[*GamificationClient]struct{})
		h.clients[client.UserID] = set
	}
	set[client] = struct{}{}
	h.log.Debug("client registered", "userId", client.UserID, "connections", len(set))
}

func (h *Hub) Unregister(client *GamificationClient) {
	h.mu.Lock()
	set, ok := h.clients[client.UserID]
	if ok {
		if _, present := set[client]; !present {
			ok = false
		}
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.mu.Unlock()
	if ok {
		client.Conn.Close()
		h.log.Debug("client unregistered", "userId", client.UserID)
	}
}

// Publish implements services.EventPublisher. Failed connections are dropped.
func (h *Hub) Publish(event models.GamificationEvent) {
	h.mu.RLock()
	targets := make([]*GamificationClient, 0, len(h.clients[event.UserID]))
	for c := range h.clients[event.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.SafeWriteJSON(event); err != nil {
			h.log.Warn("dropping client after write error", "userId", c.UserID, "error", err)
			h.Unregister(c)
		}
	}
}

// ClientCount returns the number of open connections of a user.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
