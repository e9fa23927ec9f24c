package chat

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/milletlink/milletlink-backend/pkg/db"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
)

type GormRepository struct {
	client *db.Client
}

func NewGormRepository(client *db.Client) *GormRepository {
	return &GormRepository{client: client}
}

// EnsureRoom creates the room if it does not exist yet. Concurrent joins of
// the same pair are safe: the insert is a no-op on conflict.
func (r *GormRepository) EnsureRoom(ctx context.Context, room *models.ChatRoom) error {
	err := r.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(room).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating chat room")
	}
	return nil
}

// AppendMessage writes one message to the room log and refreshes the room
// summary in a single transaction.
func (r *GormRepository) AppendMessage(ctx context.Context, message *models.ChatMessage) error {
	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatRoom{}).
			Where("id = ?", message.RoomID).
			Updates(map[string]any{
				"last_message":    message.Body,
				"last_message_at": message.SentAt,
			}).Error
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending chat message")
	}
	return nil
}

// History returns the most recent messages of a room, oldest first.
func (r *GormRepository) History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.ChatMessage
	err := r.client.DB().WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading chat history")
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
