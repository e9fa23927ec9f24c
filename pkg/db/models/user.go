package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a marketplace identity: farmer, buyer, or courier.
type User struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string          `gorm:"column:name;not null"`
	Email         *string         `gorm:"column:email"`
	Phone         *string         `gorm:"column:phone"`
	Role          string          `gorm:"column:role;not null"`
	WalletBalance decimal.Decimal `gorm:"column:wallet_balance;type:numeric(12,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

const (
	RoleFarmer  = "farmer"
	RoleBuyer   = "buyer"
	RoleCourier = "courier"
)
