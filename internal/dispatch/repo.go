package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milletlink/milletlink-backend/pkg/db"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
)

// GormRepository persists delivery assignments. Methods that participate in a
// caller transaction accept tx; passing nil falls back to the base connection.
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

func (r *GormRepository) Create(ctx context.Context, tx *gorm.DB, assignment *models.DeliveryAssignment) error {
	if err := r.conn(tx).WithContext(ctx).Create(assignment).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating delivery assignment")
	}
	return nil
}

func (r *GormRepository) Find(ctx context.Context, id uuid.UUID) (*models.DeliveryAssignment, error) {
	var assignment models.DeliveryAssignment
	err := r.client.DB().WithContext(ctx).First(&assignment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading delivery assignment")
	}
	return &assignment, nil
}

// AcceptIfBroadcasted is the arbitration point: a single conditional update
// that only lands while the assignment is still open and the courier was on
// the broadcast list. Returns false when another courier got there first, the
// assignment was cancelled, or the courier was never offered it.
func (r *GormRepository) AcceptIfBroadcasted(ctx context.Context, tx *gorm.DB, id, courierID uuid.UUID, at time.Time) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("id = ? AND status = ? AND assigned_to IS NULL AND ? = ANY(broadcasted_to)",
			id, enums.AssignmentStatusBroadcasted, courierID).
		Updates(map[string]any{
			"assigned_to": courierID,
			"status":      enums.AssignmentStatusAccepted,
			"accepted_at": at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "accepting delivery assignment")
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepository) MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	err := r.conn(tx).WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    enums.AssignmentStatusCancelled,
			"closed_at": at,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling delivery assignment")
	}
	return nil
}

func (r *GormRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, id, courierID uuid.UUID, at time.Time) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("id = ? AND status = ? AND assigned_to = ?", id, enums.AssignmentStatusAccepted, courierID).
		Updates(map[string]any{
			"status":    enums.AssignmentStatusCompleted,
			"closed_at": at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "completing delivery assignment")
	}
	return res.RowsAffected == 1, nil
}

// ActivelyDelivering returns the couriers currently holding an accepted
// assignment. Busy is defined by assignment state, nothing else.
func (r *GormRepository) ActivelyDelivering(ctx context.Context) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := r.client.DB().WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("status = ? AND assigned_to IS NOT NULL", enums.AssignmentStatusAccepted).
		Pluck("assigned_to", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing busy couriers")
	}
	busy := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		busy[id] = true
	}
	return busy, nil
}

func (r *GormRepository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.client.DB().WithContext(ctx).First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return &order, nil
}
