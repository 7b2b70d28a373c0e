package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType defines the SSE event name.
type EventType string

const (
	EventArtifactGenerated EventType = "artifact.generated"
	EventArtifactDelivered EventType = "artifact.delivered"
)

// ArtifactEvent is the payload broadcast to admin SSE clients.
type ArtifactEvent struct {
	Event       EventType `json:"event"`
	Shop        string    `json:"shop"`
	ProductID   string    `json:"productId"`
	Fingerprint string    `json:"fingerprint"`
	NewBalance  *int      `json:"newBalance,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client is one connected admin stream. A client with an empty Shop follows
// every tenant, otherwise it only receives events of that shop.
type Client struct {
	ID     string
	Shop   string
	Events chan []byte
}

func (c *Client) follows(shop string) bool {
	return c.Shop == "" || c.Shop == shop
}

// Hub fans artifact events out to admin streams.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a client scoped to shop ("" for all shops).
func (h *Hub) Register(clientID, shop string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Client{
		ID:     clientID,
		Shop:   shop,
		Events: make(chan []byte, 64),
	}
	h.clients[clientID] = c
	log.Info().Str("sse_client", clientID).Str("shop", shop).Int("total_clients", len(h.clients)).Msg("SSE client connected")
	return c
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.Events)
		delete(h.clients, clientID)
		log.Info().Str("sse_client", clientID).Int("total_clients", len(h.clients)).Msg("SSE client disconnected")
	}
}

// Broadcast sends event to every client following event.Shop.
// A client whose buffer is full misses the event.
func (h *Hub) Broadcast(event *ArtifactEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if !c.follows(event.Shop) {
			continue
		}
		select {
		case c.Events <- data:
		default:
			log.Warn().Str("sse_client", c.ID).Str("shop", event.Shop).Str("event", string(event.Event)).Msg("SSE client buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FollowerCount returns how many clients would receive an event of shop.
func (h *Hub) FollowerCount(shop string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, c := range h.clients {
		if c.follows(shop) {
			n++
		}
	}
	return n
}
