package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
)

// ErrNotSupported is returned by providers that cannot perform the requested
// operation (PayPal refunds, COD status polling and similar).
var ErrNotSupported = errors.New("operation not supported by payment provider")

// PaymentForm describes a client-side form POST to a hosted payment page.
type PaymentForm struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields"`
}

// Intent is the provider-agnostic result of starting a payment.
type Intent struct {
	Provider          enums.PaymentProvider `json:"provider"`
	ProviderPaymentID string                `json:"provider_payment_id"`
	PaymentURL        string                `json:"payment_url,omitempty"`
	Form              *PaymentForm          `json:"payment_form,omitempty"`
	ClientSecret      string                `json:"client_secret,omitempty"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	Instructions      string                `json:"instructions,omitempty"`
	Raw               map[string]any        `json:"-"`
}

// Normalized is the provider-agnostic reading of a webhook or verify callback.
type Normalized struct {
	Status            string
	ProviderPaymentID string
	SignatureVerified bool
	APIVerified       bool
	Raw               map[string]any
}

// RefundResult reports the outcome of a refund request.
type RefundResult struct {
	Status    string
	Reference string
	Raw       map[string]any
}

// StatusResult reports the remote state of a payment.
type StatusResult struct {
	Status string
	Raw    map[string]any
}

// IntentOptions carries per-request context into CreateIntent.
type IntentOptions struct {
	// FrontendOrigin overrides the configured website origin for redirect
	// URLs, so payments started from staging UIs return to them.
	FrontendOrigin string
	Email          string
}

// Gateway is the contract every payment provider implements. VerifyWebhook
// never mutates state; callers decide what an accepted payload means.
type Gateway interface {
	Key() enums.PaymentProvider
	CreateIntent(ctx context.Context, order *models.Order, opts IntentOptions) (*Intent, error)
	VerifyWebhook(ctx context.Context, payload map[string]any, headers http.Header, rawBody []byte) (bool, *Normalized, error)
	Refund(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RefundResult, error)
	FetchStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 20 * time.Second}
}

var successStatuses = map[string]struct{}{
	"success":   {},
	"succeeded": {},
	"paid":      {},
	"complete":  {},
	"completed": {},
}

// IsSuccessStatus reports whether a provider-reported status counts as a
// settled payment.
func IsSuccessStatus(status string) bool {
	_, ok := successStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// payloadAmount tolerates the numeric shapes webhook bodies arrive in.
func payloadAmount(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch typed := v.(type) {
		case string:
			if typed != "" {
				return typed
			}
		case float64:
			return decimal.NewFromFloat(typed).String()
		case int:
			return decimal.NewFromInt(int64(typed)).String()
		case int64:
			return decimal.NewFromInt(typed).String()
		}
	}
	return ""
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// latestProviderPaymentID returns the most recent non-empty provider payment
// reference on the order. Callers must preload the Payments association.
func latestProviderPaymentID(order *models.Order) string {
	var found string
	var foundAt time.Time
	for _, p := range order.Payments {
		if p.ProviderPaymentID == nil || *p.ProviderPaymentID == "" {
			continue
		}
		if found == "" || p.CreatedAt.After(foundAt) {
			found = *p.ProviderPaymentID
			foundAt = p.CreatedAt
		}
	}
	return found
}
