package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// COD needs no external calls. The order ships first and the payment record
// stays pending until delivery confirms collection.
type COD struct{}

// NewCOD returns the cash-on-delivery gateway.
func NewCOD() *COD {
	return &COD{}
}

// Key implements Gateway.
func (c *COD) Key() enums.PaymentProvider {
	return enums.ProviderCOD
}

// CreateIntent records a synthetic reference; nothing is charged.
func (c *COD) CreateIntent(ctx context.Context, order *models.Order, opts IntentOptions) (*Intent, error) {
	return &Intent{
		Provider:          c.Key(),
		ProviderPaymentID: fmt.Sprintf("cod_%s", order.ID),
		Amount:            order.Total,
		Currency:          "NPR",
		Instructions:      fmt.Sprintf("Pay NPR %s in cash when your order is delivered.", formatAmount(order.Total)),
	}, nil
}

// VerifyWebhook accepts any payload; there is no external party to distrust.
func (c *COD) VerifyWebhook(ctx context.Context, payload map[string]any, headers http.Header, rawBody []byte) (bool, *Normalized, error) {
	status := strings.ToLower(payloadString(payload, "status", "state"))
	if status == "" {
		status = "succeeded"
	}
	providerPaymentID := payloadString(payload, "provider_payment_id")
	return true, &Normalized{
		Status:            status,
		ProviderPaymentID: providerPaymentID,
		Raw:               payload,
	}, nil
}

// Refund marks the reference for a manual cash return.
func (c *COD) Refund(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RefundResult, error) {
	return &RefundResult{
		Status:    "pending",
		Reference: fmt.Sprintf("cod_refund_%s", order.ID),
	}, nil
}

// FetchStatus reports pending; collection state lives on the order itself.
func (c *COD) FetchStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	return &StatusResult{Status: "pending"}, nil
}

var _ Gateway = (*COD)(nil)
