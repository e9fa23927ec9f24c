package models

import (
	"time"

	"github.com/google/uuid"
	dbtypes "github.com/milletlink/milletlink-backend/pkg/db/types"
	"github.com/milletlink/milletlink-backend/pkg/enums"
)

// DeliveryAssignment is one broadcast offering a delivery to a set of couriers.
// assigned_to is written exactly once, via a conditional update from the
// broadcasted state.
type DeliveryAssignment struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID              `gorm:"column:order_id;type:uuid;not null"`
	BroadcastedTo dbtypes.UUIDArray      `gorm:"column:broadcasted_to;type:uuid[];not null"`
	AssignedTo    *uuid.UUID             `gorm:"column:assigned_to;type:uuid"`
	Status        enums.AssignmentStatus `gorm:"column:status;type:assignment_status_enum;not null;default:broadcasted"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	AcceptedAt    *time.Time             `gorm:"column:accepted_at"`
	ClosedAt      *time.Time             `gorm:"column:closed_at"`
}
