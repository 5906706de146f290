package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// Notification stores a queued customer message. Delivery is best effort;
// the (order, type) pair is the dedupe key for order-scoped nudges.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID   *uuid.UUID             `gorm:"column:order_id;type:uuid;index"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title     string                 `gorm:"type:text;not null"`
	Message   string                 `gorm:"type:text;not null"`
	SentAt    *time.Time             `gorm:"column:sent_at"`
	CreatedAt time.Time              `gorm:"type:timestamptz;default:now()"`
}
