package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// Coupon represents a discount code. Referral coupons share the table and
// are distinguished by IsReferral; an order may carry one of each.
type Coupon struct {
	ID            uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code          string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType  enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	Value         decimal.Decimal    `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrderTotal *decimal.Decimal   `gorm:"column:min_order_total;type:numeric(12,2)"`
	UsageLimit    *int               `gorm:"column:usage_limit"`
	PerUserLimit  *int               `gorm:"column:per_user_limit"`
	IsReferral    bool               `gorm:"column:is_referral;not null;default:false"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	ExpiresAt     *time.Time         `gorm:"column:expires_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
