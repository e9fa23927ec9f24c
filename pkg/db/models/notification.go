package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/milletlink/milletlink-backend/pkg/enums"
)

// Notification is an in-app notification row written by the notification worker.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Kind      enums.NotificationKind `gorm:"column:kind;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Body      string                 `gorm:"column:body;not null"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
