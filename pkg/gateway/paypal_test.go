package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
)

func newTestPayPal(t *testing.T, doer httpDoer, mutate func(*config.PayPalConfig)) *PayPal {
	t.Helper()
	cfg := config.PayPalConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      "https://api-m.sandbox.paypal.com",
		Currency:     "USD",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPayPal(cfg, nil)
	require.NoError(t, err)
	if doer != nil {
		p.http = doer
	}
	return p
}

// paypalDoer answers the token endpoint and hands everything else to next.
func paypalDoer(t *testing.T, next func(req *http.Request) (*http.Response, error)) *mockDoer {
	return &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/v1/oauth2/token" {
			user, pass, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			return jsonResponse(http.StatusOK, `{"access_token":"A21AA","expires_in":32400}`), nil
		}
		assert.Equal(t, "Bearer A21AA", req.Header.Get("Authorization"))
		return next(req)
	}}
}

func TestPayPalCreateIntent(t *testing.T) {
	order := testOrder("49.99")
	p := newTestPayPal(t, paypalDoer(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/checkout/orders", req.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body["intent"])
		units := body["purchase_units"].([]any)
		amount := units[0].(map[string]any)["amount"].(map[string]any)
		assert.Equal(t, "USD", amount["currency_code"])
		assert.Equal(t, "49.99", amount["value"])

		return jsonResponse(http.StatusCreated, `{
			"id":"5O190127TN364715T",
			"status":"CREATED",
			"links":[
				{"rel":"self","href":"https://api-m.sandbox.paypal.com/v2/checkout/orders/5O190127TN364715T"},
				{"rel":"approve","href":"https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T"}
			]
		}`), nil
	}), nil)

	intent, err := p.CreateIntent(context.Background(), order, IntentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", intent.ProviderPaymentID)
	assert.Contains(t, intent.PaymentURL, "checkoutnow?token=")
	assert.Equal(t, "USD", intent.Currency)
}

func TestPayPalTokenCached(t *testing.T) {
	calls := 0
	p := newTestPayPal(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/v1/oauth2/token" {
			calls++
			return jsonResponse(http.StatusOK, `{"access_token":"A21AA","expires_in":32400}`), nil
		}
		return jsonResponse(http.StatusOK, `{"id":"5O1","status":"COMPLETED"}`), nil
	}}, nil)

	_, err := p.FetchStatus(context.Background(), "5O1")
	require.NoError(t, err)
	_, err = p.FetchStatus(context.Background(), "5O1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPayPalVerifyWebhookWithoutWebhookID(t *testing.T) {
	p := newTestPayPal(t, nil, nil)
	payload := map[string]any{
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource":   map[string]any{"id": "5O1", "status": "COMPLETED"},
	}

	ok, normalized, err := p.VerifyWebhook(context.Background(), payload, http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "succeeded", normalized.Status)
	assert.Equal(t, "5O1", normalized.ProviderPaymentID)
}

func TestPayPalVerifyWebhookSignatureRejected(t *testing.T) {
	p := newTestPayPal(t, paypalDoer(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v1/notifications/verify-webhook-signature", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"verification_status":"FAILURE"}`), nil
	}), func(cfg *config.PayPalConfig) { cfg.WebhookID = "WH-1" })

	headers := http.Header{}
	headers.Set("Paypal-Transmission-Id", "trans-1")
	headers.Set("Paypal-Transmission-Sig", "sig")

	ok, normalized, err := p.VerifyWebhook(context.Background(),
		map[string]any{"resource": map[string]any{"id": "5O1", "status": "COMPLETED"}},
		headers, []byte(`{"resource":{"id":"5O1","status":"COMPLETED"}}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "invalid_signature", normalized.Status)
}

func TestPayPalVerifyWebhookSignatureAccepted(t *testing.T) {
	p := newTestPayPal(t, paypalDoer(t, func(req *http.Request) (*http.Response, error) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "WH-1", body["webhook_id"])
		assert.Equal(t, "trans-1", body["transmission_id"])
		return jsonResponse(http.StatusOK, `{"verification_status":"SUCCESS"}`), nil
	}), func(cfg *config.PayPalConfig) { cfg.WebhookID = "WH-1" })

	headers := http.Header{}
	headers.Set("Paypal-Transmission-Id", "trans-1")

	ok, normalized, err := p.VerifyWebhook(context.Background(),
		map[string]any{"resource": map[string]any{"id": "5O1", "status": "APPROVED"}},
		headers, []byte(`{"resource":{"id":"5O1","status":"APPROVED"}}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, normalized.APIVerified)
	assert.Equal(t, "succeeded", normalized.Status)
}

func TestPayPalRefundNotSupported(t *testing.T) {
	p := newTestPayPal(t, nil, nil)
	_, err := p.Refund(context.Background(), testOrder("10.00"), decimal.Zero)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestPayPalFetchStatus(t *testing.T) {
	p := newTestPayPal(t, paypalDoer(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/checkout/orders/5O1", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"id":"5O1","status":"COMPLETED"}`), nil
	}), nil)

	result, err := p.FetchStatus(context.Background(), "5O1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", result.Status)
}
