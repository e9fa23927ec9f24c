package relay

import (
	"sync"

	"github.com/google/uuid"
)

type roomMember struct {
	userID uuid.UUID
	sess   session
}

// RoomRegistry tracks which sessions joined which negotiation room. Joining
// twice is a no-op; a session leaving its last room removes the empty room.
// The participant pair registered on first join outlives membership, so the
// peer of a room stays resolvable after everyone hangs up or disconnects.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[uuid.UUID]roomMember // roomID -> sessionID -> member
	pairs map[string][2]uuid.UUID             // roomID -> participant pair
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: map[string]map[uuid.UUID]roomMember{},
		pairs: map[string][2]uuid.UUID{},
	}
}

func (r *RoomRegistry) Join(roomID string, userID, peerID uuid.UUID, sess session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[roomID]; !ok {
		a, b := userID, peerID
		if b.String() < a.String() {
			a, b = b, a
		}
		r.pairs[roomID] = [2]uuid.UUID{a, b}
	}
	members, ok := r.rooms[roomID]
	if !ok {
		members = map[uuid.UUID]roomMember{}
		r.rooms[roomID] = members
	}
	members[sess.ID()] = roomMember{userID: userID, sess: sess}
}

func (r *RoomRegistry) Leave(roomID string, sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// LeaveAll drops the session from every room and returns the rooms it was in.
func (r *RoomRegistry) LeaveAll(sessionID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var left []string
	for roomID, members := range r.rooms {
		if _, ok := members[sessionID]; !ok {
			continue
		}
		delete(members, sessionID)
		left = append(left, roomID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return left
}

// Broadcast sends the event to every session in the room except the sender's.
// Returns the number of sessions reached.
func (r *RoomRegistry) Broadcast(roomID string, exceptSessionID uuid.UUID, event string, data any) int {
	r.mu.RLock()
	members := make([]roomMember, 0, len(r.rooms[roomID]))
	for sessionID, member := range r.rooms[roomID] {
		if sessionID == exceptSessionID {
			continue
		}
		members = append(members, member)
	}
	r.mu.RUnlock()

	reached := 0
	for _, member := range members {
		if member.sess.Send(event, data) {
			reached++
		}
	}
	return reached
}

// UserInRoom reports whether any of the user's sessions joined the room.
func (r *RoomRegistry) UserInRoom(roomID string, userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, member := range r.rooms[roomID] {
		if member.userID == userID {
			return true
		}
	}
	return false
}

// Peer resolves the other participant of the room.
func (r *RoomRegistry) Peer(roomID string, selfID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.pairs[roomID]
	if !ok {
		return uuid.Nil, false
	}
	switch selfID {
	case pair[0]:
		return pair[1], true
	case pair[1]:
		return pair[0], true
	default:
		return uuid.Nil, false
	}
}

// Participant reports whether the user is one of the room's registered pair,
// joined or not.
func (r *RoomRegistry) Participant(roomID string, userID uuid.UUID) bool {
	_, ok := r.Peer(roomID, userID)
	return ok
}

// RoomsOf returns every room whose registered pair includes the user.
func (r *RoomRegistry) RoomsOf(userID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for roomID, pair := range r.pairs {
		if pair[0] == userID || pair[1] == userID {
			out = append(out, roomID)
		}
	}
	return out
}

// Users returns the distinct users present in the room.
func (r *RoomRegistry) Users(roomID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, member := range r.rooms[roomID] {
		if !seen[member.userID] {
			seen[member.userID] = true
			out = append(out, member.userID)
		}
	}
	return out
}
