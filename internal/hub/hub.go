// Package hub provides the per-user channel abstraction and named broadcast
// groups used to notify both parties of a match.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Channel is a live, addressable connection to one user.
type Channel interface {
	ID() string
	Emit(event string, data any) error
	Close() error
}

type Hub struct {
	rooms map[string]map[string]Channel // room -> channel id -> channel
	mu    sync.RWMutex
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]Channel),
	}
}

func (h *Hub) Join(room string, ch Channel) {
	if ch == nil {
		return
	}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]Channel)
	}
	h.rooms[room][ch.ID()] = ch
	size := len(h.rooms[room])
	h.mu.Unlock()

	log.Debug().
		Str("room", room).
		Str("channelId", ch.ID()).
		Int("memberCount", size).
		Msg("channel joined room")
}

func (h *Hub) Leave(room string, ch Channel) {
	if ch == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, ch.ID())
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// LeaveAll removes ch from every room it belongs to.
func (h *Hub) LeaveAll(ch Channel) {
	if ch == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for room, members := range h.rooms {
		if _, ok := members[ch.ID()]; !ok {
			continue
		}
		delete(members, ch.ID())
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// CloseRoom drops the room without closing member channels.
func (h *Hub) CloseRoom(room string) {
	h.mu.Lock()
	delete(h.rooms, room)
	h.mu.Unlock()
}

// Broadcast emits event to every member of room except the channel given as
// except, which may be nil. It returns the number of channels written to.
func (h *Hub) Broadcast(room string, event string, data any, except Channel) int {
	h.mu.RLock()
	targets := make([]Channel, 0, len(h.rooms[room]))
	for id, ch := range h.rooms[room] {
		if except != nil && id == except.ID() {
			continue
		}
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, ch := range targets {
		if err := ch.Emit(event, data); err != nil {
			log.Warn().
				Err(err).
				Str("room", room).
				Str("event", event).
				Str("channelId", ch.ID()).
				Msg("failed to emit room event")
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
