package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Order is a buyer purchase flowing through the lifecycle manager.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID            uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	FarmerID           uuid.UUID         `gorm:"column:farmer_id;type:uuid;not null"`
	Status             enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:pending"`
	DeliveryLat        float64           `gorm:"column:delivery_lat;not null"`
	DeliveryLng        float64           `gorm:"column:delivery_lng;not null"`
	TotalAmount        decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	AssignmentID       *uuid.UUID        `gorm:"column:assignment_id;type:uuid"`
	CancelledAt        *time.Time        `gorm:"column:cancelled_at"`
	CancellationReason *string           `gorm:"column:cancellation_reason"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID"`
}

// OrderLineItem is a product/quantity pair on an order.
type OrderLineItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Qty        int             `gorm:"column:qty;not null"`
	UnitAmount decimal.Decimal `gorm:"column:unit_amount;type:numeric(12,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
