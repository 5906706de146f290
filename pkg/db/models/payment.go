package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/types"
)

// Payment records one attempt against a provider. At most one row exists per
// (order, provider); raw provider responses accumulate in RawResponse and are
// merged, never overwritten.
type Payment struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payment_order_provider"`
	Provider          enums.PaymentProvider     `gorm:"column:provider;type:text;not null;uniqueIndex:idx_payment_order_provider"`
	ProviderPaymentID *string                   `gorm:"column:provider_payment_id;index"`
	Amount            decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string                    `gorm:"column:currency;not null;default:'NPR'"`
	Status            enums.PaymentRecordStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RawResponse       types.JSONMap             `gorm:"column:raw_response;type:jsonb"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
