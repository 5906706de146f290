package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/types"
)

// Order is the aggregate produced by checkout. Pricing fields are frozen at
// creation; only status fields and supplier bookkeeping mutate afterwards.
type Order struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         int64                 `gorm:"column:order_number;not null;uniqueIndex"`
	UserID              uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Status              enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus       enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentProvider     enums.PaymentProvider `gorm:"column:payment_provider;type:text;not null"`
	Subtotal            decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountTotal       decimal.Decimal       `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	Total               decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null"`
	CouponID            *uuid.UUID            `gorm:"column:coupon_id;type:uuid"`
	ReferralCouponID    *uuid.UUID            `gorm:"column:referral_coupon_id;type:uuid"`
	ShippingMethod      string                `gorm:"column:shipping_method;not null;default:'standard'"`
	ShippingAddressID   uuid.UUID             `gorm:"column:shipping_address_id;type:uuid;not null"`
	BillingAddressID    *uuid.UUID            `gorm:"column:billing_address_id;type:uuid"`
	EstimatedDeliveryAt *time.Time            `gorm:"column:estimated_delivery_at"`
	SupplierOrderIDs    types.StringMap       `gorm:"column:supplier_order_ids;type:jsonb"`
	Items               []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments            []Payment             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusEvents        []OrderStatusEvent    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
