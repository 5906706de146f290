package suppliers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
)

// OrderLine is one forwarded item. UnitPrice travels as a fixed 2-dp string
// so supplier systems never see float money.
type OrderLine struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PlaceOrderRequest is the payload forwarded to a supplier. IdempotencyKey
// is stable per (order, supplier) so redeliveries never double-order.
type PlaceOrderRequest struct {
	IdempotencyKey    string      `json:"idempotency_key"`
	OrderNumber       int64       `json:"order_number"`
	ShippingAddressID uuid.UUID   `json:"shipping_address_id"`
	Lines             []OrderLine `json:"lines"`
}

// PlaceOrderResult carries the supplier's external order reference.
type PlaceOrderResult struct {
	ExternalID string
	Raw        map[string]any
}

// OrderStatus is a supplier's view of a forwarded order.
type OrderStatus struct {
	Status string
	Raw    map[string]any
}

// Adapter talks to one supplier integration style. Implementations are
// registered by key at startup and shared across suppliers using that key.
type Adapter interface {
	PlaceOrder(ctx context.Context, supplier *models.Supplier, req PlaceOrderRequest) (*PlaceOrderResult, error)
	GetOrderStatus(ctx context.Context, supplier *models.Supplier, externalID string) (*OrderStatus, error)
}
