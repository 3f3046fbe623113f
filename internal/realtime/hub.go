package realtime

import (
	"sync"
)

// Room is the set of connections following one interview.
type Room struct {
	ID      string
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewRoom(id string) *Room {
	return &Room{ID: id, clients: make(map[*Client]struct{})}
}

func (r *Room) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Leave removes c and returns how many clients remain.
func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients)
}

func (r *Room) Broadcast(frame OutboundFrame) {
	for _, c := range r.Clients() {
		c.Send(frame)
	}
}

// Clients returns a snapshot of the room's connections.
func (r *Room) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Hub indexes rooms by name. Rooms are removed when their last client
// leaves.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*Room)}
}

func RoomName(sessionID string) string {
	return "interview_" + sessionID
}

func (h *Hub) Join(name string, c *Client) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[name]
	if !ok {
		room = NewRoom(name)
		h.rooms[name] = room
	}
	room.Join(c)
	return room
}

func (h *Hub) Leave(name string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	if room.Leave(c) == 0 {
		delete(h.rooms, name)
	}
}

func (h *Hub) Broadcast(name string, frame OutboundFrame) {
	if room, ok := h.Room(name); ok {
		room.Broadcast(frame)
	}
}

func (h *Hub) Room(name string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[name]
	return room, ok
}
