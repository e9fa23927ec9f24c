package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

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

func (r *GormRepository) Insert(ctx context.Context, notification *models.Notification) error {
	if err := r.client.DB().WithContext(ctx).Create(notification).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inserting notification")
	}
	return nil
}

func (r *GormRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Notification
	err := r.client.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing notifications")
	}
	return rows, nil
}

func (r *GormRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	err := r.client.DB().WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		Update("read_at", time.Now().UTC()).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking notification read")
	}
	return nil
}
