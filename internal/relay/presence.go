package relay

import (
	"sync"

	"github.com/google/uuid"
)

// PresenceTracker maintains the user -> live sessions map. A user is online
// while at least one session is bound to them; transitions happen only on the
// 0->1 and 1->0 edges, so multiple tabs or devices never flap presence.
type PresenceTracker struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]session
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{sessions: map[uuid.UUID]map[uuid.UUID]session{}}
}

// Add binds a session to a user. Returns true when the user just came online.
func (t *PresenceTracker) Add(userID uuid.UUID, sess session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket, ok := t.sessions[userID]
	if !ok {
		bucket = map[uuid.UUID]session{}
		t.sessions[userID] = bucket
	}
	wasEmpty := len(bucket) == 0
	bucket[sess.ID()] = sess
	return wasEmpty
}

// Remove unbinds a session. Returns true when the user just went offline.
func (t *PresenceTracker) Remove(userID uuid.UUID, sessionID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket, ok := t.sessions[userID]
	if !ok {
		return false
	}
	if _, present := bucket[sessionID]; !present {
		return false
	}
	delete(bucket, sessionID)
	if len(bucket) == 0 {
		delete(t.sessions, userID)
		return true
	}
	return false
}

// Online reports whether the user has at least one live session.
func (t *PresenceTracker) Online(userID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions[userID]) > 0
}

// Sessions returns a snapshot of the user's live sessions.
func (t *PresenceTracker) Sessions(userID uuid.UUID) []session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bucket := t.sessions[userID]
	out := make([]session, 0, len(bucket))
	for _, sess := range bucket {
		out = append(out, sess)
	}
	return out
}
