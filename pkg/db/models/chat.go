package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRoom is the negotiation channel between a farmer and a buyer. The id is
// the canonical pair key, but both participants are stored explicitly so the
// "other participant" never has to be parsed back out of the key.
type ChatRoom struct {
	ID            string     `gorm:"column:id;primaryKey"`
	ParticipantA  uuid.UUID  `gorm:"column:participant_a;type:uuid;not null"`
	ParticipantB  uuid.UUID  `gorm:"column:participant_b;type:uuid;not null"`
	LastMessage   *string    `gorm:"column:last_message"`
	LastMessageAt *time.Time `gorm:"column:last_message_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// ChatMessage is one entry in a room's append-only log.
type ChatMessage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID    string    `gorm:"column:room_id;not null;index"`
	SenderID  uuid.UUID `gorm:"column:sender_id;type:uuid;not null"`
	Body      string    `gorm:"column:body;not null"`
	SentAt    time.Time `gorm:"column:sent_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
