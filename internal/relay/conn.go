package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/milletlink/milletlink-backend/pkg/config"
)

// session is one live client connection as the hub sees it. Conn implements
// it over a websocket; tests implement it in memory.
type session interface {
	ID() uuid.UUID
	User() (uuid.UUID, bool)
	BindUser(userID uuid.UUID)
	Send(event string, data any) bool
}

// Conn wraps a websocket with a buffered outbound queue so one slow client
// never stalls a broadcast.
type Conn struct {
	id uuid.UUID
	ws *websocket.Conn

	mu     sync.RWMutex
	userID *uuid.UUID

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	writeTimeout time.Duration
	pongTimeout  time.Duration
}

func NewConn(ws *websocket.Conn, cfg config.RelayConfig) *Conn {
	queueSize := cfg.SendQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Conn{
		id:           uuid.New(),
		ws:           ws,
		send:         make(chan []byte, queueSize),
		closed:       make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		pongTimeout:  cfg.PongTimeout,
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

func (c *Conn) User() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.userID == nil {
		return uuid.Nil, false
	}
	return *c.userID, true
}

func (c *Conn) BindUser(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = &userID
}

// Send queues an event frame. Returns false if the connection is gone or its
// queue is full; the frame is dropped rather than blocking the caller.
func (c *Conn) Send(event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		return false
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return false
	}
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// WritePump flushes the outbound queue and keeps the connection alive with
// pings. Runs until Close or a write error.
func (c *Conn) WritePump() {
	pingInterval := c.pongTimeout * 9 / 10
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			c.setWriteDeadline()
			if c.ws.WriteMessage(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			c.setWriteDeadline()
			if c.ws.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) setWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}

// ReadEnvelope blocks for the next client frame.
func (c *Conn) ReadEnvelope() (Envelope, error) {
	if c.pongTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
		})
	}
	var env Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
