package authority

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"collab-backend/internal/cache"
	"collab-backend/internal/model"
	"collab-backend/internal/protocol"
)

// MessageArchiver persists committed chat messages. Archiving is
// best-effort: a failed write is logged, never surfaced to clients.
type MessageArchiver interface {
	SaveMessage(ctx context.Context, roomKey string, msg model.ChatMessage) error
}

// Hub owns every live room on this node. It is the designated process
// of each room: all intents commit here, in one place, in one order.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	archiver MessageArchiver // optional
	store    cache.Store     // optional room state persistence
	storeTTL time.Duration
}

func NewHub(archiver MessageArchiver, store cache.Store, storeTTL time.Duration) *Hub {
	return &Hub{
		rooms:    make(map[string]*Room),
		archiver: archiver,
		store:    store,
		storeTTL: storeTTL,
	}
}

// GetOrCreateRoom gets an existing room or creates a new one. A new
// room warm-starts from persisted state when the hub has a store, so
// a process restart does not wipe live classrooms.
func (h *Hub) GetOrCreateRoom(key string, kind model.RoomKind) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[key]; exists {
		return room
	}

	room := newRoom(key, kind, h)
	h.loadRoomState(room)
	h.rooms[key] = room
	log.Printf("[Hub] Created room: %s", key)
	return room
}

func (h *Hub) loadRoomState(room *Room) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := h.store.Get(ctx, roomStateKey(room.key))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[Hub] State read failed for %s: %v", room.key, err)
		}
		return
	}
	var snap protocol.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[Hub] Discarding corrupt state for %s: %v", room.key, err)
		return
	}
	room.restore(snap)
	log.Printf("[Hub] Restored room %s at seq %d", room.key, snap.Seq)
}

// persistRoomState writes a committed snapshot, best-effort.
func (h *Hub) persistRoomState(key string, snap protocol.Snapshot) {
	if h.store == nil {
		return
	}
	go func() {
		data, err := json.Marshal(snap)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.store.Set(ctx, roomStateKey(key), data, h.storeTTL); err != nil {
			log.Printf("[Hub] State write failed for %s: %v", key, err)
		}
	}()
}

func roomStateKey(key string) string {
	return "room:" + key + ":state"
}

// Room returns a live room, if any.
func (h *Hub) Room(key string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[key]
	return room, ok
}

// RemoveRoom drops a room and its state.
func (h *Hub) RemoveRoom(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rooms[key]; exists {
		delete(h.rooms, key)
		log.Printf("[Hub] Removed room: %s", key)
	}
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// CleanupInactiveRooms removes rooms that have been empty for at least
// maxAge. A freshly emptied room keeps its state for that grace period
// so a classroom-wide reconnect does not lose the whiteboard.
func (h *Hub) CleanupInactiveRooms(maxAge time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, room := range h.rooms {
		if room.emptySince(cutoff) {
			delete(h.rooms, key)
			log.Printf("[Hub] Cleaned up inactive room: %s", key)
		}
	}
}
