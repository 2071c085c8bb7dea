// Package broker implements the subscription broker (§4.F):
// gorilla/websocket hub-and-client pair generalized from the
// teacher-pack's hub/client (internal/websocket/hub.go, client.go) from
// a flat broadcast-to-everyone model into room-addressed delivery.
package broker

import (
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"fleettrack/internal/logging"
)

// Hub holds every room's membership plus the implicit nearby-all room
// every connected session joins at connect time.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}

	sweeper *cron.Cron
}

func NewHub() *Hub {
	h := &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		sweeper: cron.New(),
	}
	_, _ = h.sweeper.AddFunc("*/5 * * * *", h.sweepEmptyRooms)
	h.sweeper.Start()
	return h
}

func (h *Hub) Stop() {
	h.sweeper.Stop()
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.Join(c, RoomNearbyAll)
	logging.Info().Int("clients", h.ClientCount()).Msg("broker: client connected")
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	logging.Info().Int("clients", h.ClientCount()).Msg("broker: client disconnected")
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PushToRoom delivers event/payload to every member of room. A client
// whose send buffer is full misses this message (it is dropped for that
// client) rather than blocking the publisher, per spec.md §4.F's
// back-pressure rule.
func (h *Hub) PushToRoom(room, event string, payload any) {
	h.mu.RLock()
	members := h.rooms[room]
	clients := make([]*Client, 0, len(members))
	for c := range members {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	// Deterministic delivery order, grounded on the teacher's
	// pointer-address sort in broadcastToClients.
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	frame := Frame{Type: event, Payload: payload}
	for _, c := range clients {
		select {
		case c.send <- frame:
		default:
			logging.Warn().Str("room", room).Msg("broker: client send buffer full, dropping message")
		}
	}
}

// sweepEmptyRooms removes rooms whose membership dropped to zero
// between a Leave and the next Join that would have recreated them —
// Join/Leave already self-clean, so this only catches an edge case left
// by a forced Unregister racing a concurrent PushToRoom snapshot.
func (h *Hub) sweepEmptyRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

const RoomNearbyAll = "nearby-all"
