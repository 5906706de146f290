package gateway

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
)

// mockDoer routes requests to a handler function so tests can assert on the
// outgoing request and script the response.
type mockDoer struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testOrder(total string) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: 1042,
		UserID:      uuid.New(),
		Total:       decimal.RequireFromString(total),
	}
}

func paymentWithProviderID(order *models.Order, providerPaymentID string) *models.Payment {
	return &models.Payment{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Provider:          order.PaymentProvider,
		ProviderPaymentID: &providerPaymentID,
		Amount:            order.Total,
	}
}

func TestIsSuccessStatus(t *testing.T) {
	for _, s := range []string{"success", "Succeeded", "PAID", "complete", " completed "} {
		assert.True(t, IsSuccessStatus(s), s)
	}
	for _, s := range []string{"", "pending", "failed", "canceled"} {
		assert.False(t, IsSuccessStatus(s), s)
	}
}

func TestPayloadAmount(t *testing.T) {
	payload := map[string]any{
		"amt":   1335.5,
		"total": "99.00",
		"count": int64(7),
	}
	assert.Equal(t, "1335.5", payloadAmount(payload, "amount", "amt"))
	assert.Equal(t, "99.00", payloadAmount(payload, "total"))
	assert.Equal(t, "7", payloadAmount(payload, "count"))
	assert.Equal(t, "", payloadAmount(payload, "missing"))
}
