package session

import (
	"sort"
	"sync"
)

type roomMembers struct {
	mu           sync.RWMutex
	ownerID      string
	ownerSeen    bool
	participants map[string]*Participant // connectionId -> Participant
}

// Registry is the in-memory record of who is connected to which room right now.
// A connection is in at most one room. Only the Manager mutates it.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomMembers // roomCode -> members
	conns map[string]string       // connectionId -> roomCode
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*roomMembers),
		conns: make(map[string]string),
	}
}

// add registers p, refusing a connection that is already in any room.
func (r *Registry) add(p Participant, ownerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[p.ConnectionID]; ok {
		return false
	}
	room, ok := r.rooms[p.RoomCode]
	if !ok {
		room = &roomMembers{
			ownerID:      ownerID,
			participants: make(map[string]*Participant),
		}
		r.rooms[p.RoomCode] = room
	}
	room.mu.Lock()
	room.participants[p.ConnectionID] = &p
	if p.UserID == room.ownerID {
		room.ownerSeen = true
	}
	room.mu.Unlock()
	r.conns[p.ConnectionID] = p.RoomCode
	return true
}

// remove drops connID from roomCode. lastOne reports the room became empty.
func (r *Registry) remove(roomCode, connID string) (removed Participant, ok bool, lastOne bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[connID] != roomCode {
		return Participant{}, false, false
	}
	room, ok := r.rooms[roomCode]
	if !ok {
		// index points at a room we do not have, drop the stale entry
		delete(r.conns, connID)
		return Participant{}, false, false
	}

	room.mu.Lock()
	p, found := room.participants[connID]
	if found {
		removed = *p
		delete(room.participants, connID)
	}
	empty := len(room.participants) == 0
	room.mu.Unlock()

	delete(r.conns, connID)
	if empty {
		delete(r.rooms, roomCode)
	}
	return removed, found, found && empty
}

func (r *Registry) members(roomCode string) *roomMembers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomCode]
}

// update applies fn to the participant under the room lock and returns a copy.
func (r *Registry) update(roomCode, connID string, fn func(p *Participant)) (Participant, bool) {
	room := r.members(roomCode)
	if room == nil {
		return Participant{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	p, ok := room.participants[connID]
	if !ok {
		return Participant{}, false
	}
	fn(p)
	return *p, true
}

// OwnerOf returns the owner recorded when the room's first connection joined.
func (r *Registry) OwnerOf(roomCode string) string {
	room := r.members(roomCode)
	if room == nil {
		return ""
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.ownerID
}

// OwnerJoined reports whether the owner has held a connection in the room
// since it last became live.
func (r *Registry) OwnerJoined(roomCode string) bool {
	room := r.members(roomCode)
	if room == nil {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.ownerSeen
}

// RoomOf returns the room connID is joined to.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.conns[connID]
	return code, ok
}

func (r *Registry) IsMember(roomCode, connID string) bool {
	code, ok := r.RoomOf(connID)
	return ok && code == roomCode
}

func (r *Registry) Get(roomCode, connID string) (Participant, bool) {
	room := r.members(roomCode)
	if room == nil {
		return Participant{}, false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	p, ok := room.participants[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Participants returns a copy of the room roster ordered by join time.
func (r *Registry) Participants(roomCode string) []Participant {
	room := r.members(roomCode)
	if room == nil {
		return []Participant{}
	}
	room.mu.RLock()
	out := make([]Participant, 0, len(room.participants))
	for _, p := range room.participants {
		out = append(out, *p)
	}
	room.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// ConnectionIDs lists the room's connections except exclude.
func (r *Registry) ConnectionIDs(roomCode, exclude string) []string {
	room := r.members(roomCode)
	if room == nil {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	out := make([]string, 0, len(room.participants))
	for id := range room.participants {
		if id != exclude {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Count(roomCode string) int {
	room := r.members(roomCode)
	if room == nil {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.participants)
}

// UserConnections counts the live connections userID holds in the room.
func (r *Registry) UserConnections(roomCode, userID string) int {
	room := r.members(roomCode)
	if room == nil {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	n := 0
	for _, p := range room.participants {
		if p.UserID == userID {
			n++
		}
	}
	return n
}

func (r *Registry) Stats() (rooms int, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.conns)
}
