package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
)

// CallSession is one in-flight call inside a room.
type CallSession struct {
	RoomID    string
	CallerID  uuid.UUID
	StartedAt time.Time
	Answered  bool
}

// CallBridge enforces one call per room. It holds no media and no timers:
// unanswered calls end when a client sends end-call, never by the server.
type CallBridge struct {
	mu     sync.Mutex
	active map[string]*CallSession
}

func NewCallBridge() *CallBridge {
	return &CallBridge{active: map[string]*CallSession{}}
}

// Start opens a call in the room. A second call while one is active is a
// conflict, whoever tries it.
func (b *CallBridge) Start(roomID string, callerID uuid.UUID) (*CallSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.active[roomID]; exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a call is already active in this room")
	}
	call := &CallSession{RoomID: roomID, CallerID: callerID, StartedAt: time.Now()}
	b.active[roomID] = call
	return call, nil
}

// Answer marks the room's call as picked up.
func (b *CallBridge) Answer(roomID string) (*CallSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	call, exists := b.active[roomID]
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active call in this room")
	}
	call.Answered = true
	return call, nil
}

// End tears down the room's call. Ending a room with no call is a no-op.
func (b *CallBridge) End(roomID string) (*CallSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	call, exists := b.active[roomID]
	if exists {
		delete(b.active, roomID)
	}
	return call, exists
}

// Active returns the call in the room, if any.
func (b *CallBridge) Active(roomID string) (*CallSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	call, exists := b.active[roomID]
	return call, exists
}
