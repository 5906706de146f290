package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// OrderStatusEvent is an append-only audit row recorded on every order
// status transition.
type OrderStatusEvent struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Note      string            `gorm:"column:note;not null;default:''"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
