package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// OrderCreatedEvent signals a freshly placed checkout. Supplier forwarding
// for cash-on-delivery orders hangs off this event.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID             `json:"order_id"`
	OrderNumber int64                 `json:"order_number"`
	UserID      uuid.UUID             `json:"user_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	Total       decimal.Decimal       `json:"total"`
	ItemCount   int                   `json:"item_count"`
}

// OrderPaidEvent is emitted exactly once when a payment settles.
type OrderPaidEvent struct {
	OrderID           uuid.UUID             `json:"order_id"`
	OrderNumber       int64                 `json:"order_number"`
	UserID            uuid.UUID             `json:"user_id"`
	Provider          enums.PaymentProvider `json:"provider"`
	ProviderPaymentID string                `json:"provider_payment_id"`
	Amount            decimal.Decimal       `json:"amount"`
	SettledAt         time.Time             `json:"settled_at"`
}

// PaymentFailedEvent reports a rejected or verification-failed payment.
type PaymentFailedEvent struct {
	OrderID  uuid.UUID             `json:"order_id"`
	UserID   uuid.UUID             `json:"user_id"`
	Provider enums.PaymentProvider `json:"provider"`
	Reason   string                `json:"reason,omitempty"`
}

// PaymentRefundedEvent is emitted when an admin refund completes.
type PaymentRefundedEvent struct {
	OrderID   uuid.UUID             `json:"order_id"`
	UserID    uuid.UUID             `json:"user_id"`
	Provider  enums.PaymentProvider `json:"provider"`
	Amount    decimal.Decimal       `json:"amount"`
	Reference string                `json:"reference,omitempty"`
}

// NotificationRequestedEvent tells the notification consumer to record and
// deliver a message to a user.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID              `json:"user_id"`
	OrderID *uuid.UUID             `json:"order_id,omitempty"`
	Type    enums.NotificationType `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
}
