package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/relay/internal/domain"
)

// RoomRegistry maps a room id to the set of client ids currently in it.
// A room with no members is removed immediately; it never lingers.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ClientID]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[domain.RoomID]map[domain.ClientID]struct{})}
}

// Join adds id to the room, creating the room on first join, and returns
// the member set as it was before the add. Joining a room the client is
// already in is absorbed by set semantics.
func (r *RoomRegistry) Join(roomID domain.RoomID, id domain.ClientID) []domain.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[domain.ClientID]struct{})
		r.rooms[roomID] = room
	}
	existing := make([]domain.ClientID, 0, len(room))
	for member := range room {
		existing = append(existing, member)
	}
	room[id] = struct{}{}
	log.Info().Str("module", "core.rooms").Str("room", string(roomID)).Str("id", string(id)).Int("size", len(room)).Msg("joined room")
	return existing
}

// Leave removes id from the room and returns the survivors. The room is
// deleted when the last member leaves. Leaving an unknown room is a no-op.
func (r *RoomRegistry) Leave(roomID domain.RoomID, id domain.ClientID) []domain.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	delete(room, id)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		log.Info().Str("module", "core.rooms").Str("room", string(roomID)).Msg("room emptied")
		return nil
	}
	remaining := make([]domain.ClientID, 0, len(room))
	for member := range room {
		remaining = append(remaining, member)
	}
	log.Info().Str("module", "core.rooms").Str("room", string(roomID)).Str("id", string(id)).Int("size", len(room)).Msg("left room")
	return remaining
}

// Members returns a snapshot of the room's member set; ok is false when
// the room does not exist.
func (r *RoomRegistry) Members(roomID domain.RoomID) ([]domain.ClientID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	out := make([]domain.ClientID, 0, len(room))
	for member := range room {
		out = append(out, member)
	}
	return out, true
}

// RoomOf scans for the room holding id. Membership is keyed by client
// id, so a reconnecting client can recover where it was.
func (r *RoomRegistry) RoomOf(id domain.ClientID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for roomID, room := range r.rooms {
		if _, ok := room[id]; ok {
			return roomID, true
		}
	}
	return "", false
}

// RoomInfo is a read-only view for the rooms API.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

func (r *RoomRegistry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: len(room)})
	}
	return out
}
