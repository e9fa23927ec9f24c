package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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

func (r *GormRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.client.DB()
}

func (r *GormRepository) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.client.DB().WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return &order, nil
}

// Save persists the order's mutable lifecycle columns.
func (r *GormRepository) Save(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":              order.Status,
			"assignment_id":       order.AssignmentID,
			"cancelled_at":        order.CancelledAt,
			"cancellation_reason": order.CancellationReason,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving order")
	}
	return nil
}

// RestockItems returns reserved stock to the catalog.
func (r *GormRepository) RestockItems(ctx context.Context, tx *gorm.DB, items []models.OrderLineItem) error {
	for _, item := range items {
		err := r.conn(tx).WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			UpdateColumn("stock_qty", gorm.Expr("stock_qty + ?", item.Qty)).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restocking product")
		}
	}
	return nil
}

// CreditWallet adds a refund to the user's wallet balance.
func (r *GormRepository) CreditWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	err := r.conn(tx).WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", amount)).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting wallet")
	}
	return nil
}
