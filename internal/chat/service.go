package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

type repository interface {
	EnsureRoom(ctx context.Context, room *models.ChatRoom) error
	AppendMessage(ctx context.Context, message *models.ChatMessage) error
	History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// Message is one chat message queued for the durable log.
type Message struct {
	RoomID   string
	SenderID uuid.UUID
	Body     string
	SentAt   time.Time
}

// Service owns the room registry rows and the asynchronous message log.
// Live delivery never waits on a database write: messages are queued and a
// background worker drains the queue. When the queue is full the message is
// dropped from the log (never from the live relay) and the drop is logged.
type Service struct {
	repo    repository
	logg    *logger.Logger
	retries int

	queue chan Message
	done  chan struct{}

	closeOnce sync.Once
}

func NewService(repo repository, cfg config.ChatConfig, logg *logger.Logger) *Service {
	size := cfg.PersistQueueSize
	if size <= 0 {
		size = 256
	}
	return &Service{
		repo:    repo,
		logg:    logg,
		retries: cfg.PersistRetries,
		queue:   make(chan Message, size),
		done:    make(chan struct{}),
	}
}

// EnsureRoom makes the room row exist for a participant pair and returns its
// canonical id. Safe to call on every join.
func (s *Service) EnsureRoom(ctx context.Context, a, b uuid.UUID) (string, error) {
	roomID := PairKey(a, b)
	room := &models.ChatRoom{ID: roomID, ParticipantA: a, ParticipantB: b}
	if a.String() > b.String() {
		room.ParticipantA, room.ParticipantB = b, a
	}
	if err := s.repo.EnsureRoom(ctx, room); err != nil {
		return "", err
	}
	return roomID, nil
}

// Enqueue hands a message to the durable log without blocking. Returns false
// when the queue is saturated and the message was dropped.
func (s *Service) Enqueue(ctx context.Context, message Message) bool {
	select {
	case s.queue <- message:
		return true
	default:
		if s.logg != nil {
			logCtx := s.logg.WithRoomID(ctx, message.RoomID)
			s.logg.Warn(logCtx, "chat persist queue full, dropping message from log")
		}
		return false
	}
}

// Run drains the persist queue until the context is cancelled and the queue
// is closed. Call from a dedicated goroutine.
func (s *Service) Run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case message, ok := <-s.queue:
			if !ok {
				return
			}
			s.persist(ctx, message)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

// drain empties whatever is already queued so an orderly shutdown does not
// lose buffered messages.
func (s *Service) drain() {
	for {
		select {
		case message, ok := <-s.queue:
			if !ok {
				return
			}
			s.persist(context.Background(), message)
		default:
			return
		}
	}
}

func (s *Service) persist(ctx context.Context, message Message) {
	row := &models.ChatMessage{
		ID:       uuid.New(),
		RoomID:   message.RoomID,
		SenderID: message.SenderID,
		Body:     message.Body,
		SentAt:   message.SentAt,
	}

	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err = s.repo.AppendMessage(ctx, row); err == nil {
			return
		}
	}
	if s.logg != nil {
		logCtx := s.logg.WithRoomID(ctx, message.RoomID)
		s.logg.Error(logCtx, "chat message lost after retries", err)
	}
}

// History loads recent messages for a room.
func (s *Service) History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	return s.repo.History(ctx, roomID, limit)
}

// Close stops accepting new messages and waits for the worker to drain the
// queue. Only call when Run is active.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}
