package models

import (
	"time"

	"github.com/google/uuid"
)

// CouponRedemption marks a coupon as consumed by an order. The composite
// unique index makes settlement retries collapse onto one row.
type CouponRedemption struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID  uuid.UUID `gorm:"column:coupon_id;type:uuid;not null;uniqueIndex:idx_redemption_identity"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_redemption_identity"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_redemption_identity"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
