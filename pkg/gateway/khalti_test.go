package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
)

func newTestKhalti(t *testing.T, doer httpDoer) *Khalti {
	t.Helper()
	k, err := NewKhalti(config.KhaltiConfig{
		SecretKey: "live_secret_key_abc",
		BaseURL:   "https://a.khalti.com/api/v2",
	}, "https://pasalmart.example", nil)
	require.NoError(t, err)
	if doer != nil {
		k.http = doer
	}
	return k
}

func TestNewKhaltiRequiresSecret(t *testing.T) {
	_, err := NewKhalti(config.KhaltiConfig{BaseURL: "https://a.khalti.com/api/v2"}, "", nil)
	assert.Error(t, err)
}

func TestKhaltiCreateIntent(t *testing.T) {
	order := testOrder("10.50")
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "https://a.khalti.com/api/v2/epayment/initiate/", req.URL.String())
		assert.Equal(t, "Key live_secret_key_abc", req.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, float64(1050), body["amount"])
		assert.Equal(t, order.ID.String(), body["purchase_order_id"])
		assert.Equal(t, "Order #1042", body["purchase_order_name"])
		assert.NotEmpty(t, body["return_url"])

		return jsonResponse(http.StatusOK,
			`{"pidx":"bZQLD9wRVWo4CdESSfuSsB","payment_url":"https://test-pay.khalti.com/?pidx=bZQLD9wRVWo4CdESSfuSsB"}`), nil
	}})

	intent, err := k.CreateIntent(context.Background(), order, IntentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "bZQLD9wRVWo4CdESSfuSsB", intent.ProviderPaymentID)
	assert.Contains(t, intent.PaymentURL, "test-pay.khalti.com")
	assert.Equal(t, "NPR", intent.Currency)
}

func TestKhaltiCreateIntentRejected(t *testing.T) {
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"detail":"Amount should be greater than Rs. 10"}`), nil
	}})

	_, err := k.CreateIntent(context.Background(), testOrder("0.05"), IntentOptions{})
	assert.Error(t, err)
}

func TestKhaltiVerifyWebhookPidxLookup(t *testing.T) {
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "https://a.khalti.com/api/v2/epayment/lookup/", req.URL.String())
		return jsonResponse(http.StatusOK, `{"pidx":"bZQ","status":"Completed","total_amount":1050}`), nil
	}})

	ok, normalized, err := k.VerifyWebhook(context.Background(),
		map[string]any{"pidx": "bZQ", "status": "Completed"}, http.Header{}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, normalized.APIVerified)
	assert.Equal(t, "succeeded", normalized.Status)
	assert.Equal(t, "bZQ", normalized.ProviderPaymentID)
}

func TestKhaltiVerifyWebhookLegacyToken(t *testing.T) {
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "https://a.khalti.com/api/v2/payment/verify/", req.URL.String())
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, float64(1050), body["amount"])
		return jsonResponse(http.StatusOK, `{"idx":"tok-1","state":{"name":"Completed"}}`), nil
	}})

	ok, normalized, err := k.VerifyWebhook(context.Background(),
		map[string]any{"token": "tok-1", "amount": "10.50", "status": "Completed"},
		http.Header{}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, normalized.APIVerified)
	assert.Equal(t, "tok-1", normalized.ProviderPaymentID)
}

func TestKhaltiVerifyWebhookFallbackTrust(t *testing.T) {
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}})

	ok, normalized, err := k.VerifyWebhook(context.Background(),
		map[string]any{"pidx": "bZQ", "status": "Completed"}, http.Header{}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, normalized.APIVerified)
	assert.Equal(t, "succeeded", normalized.Status)
}

func TestKhaltiVerifyWebhookFailedStatus(t *testing.T) {
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status":"Expired"}`), nil
	}})

	ok, normalized, err := k.VerifyWebhook(context.Background(),
		map[string]any{"pidx": "bZQ", "status": "Expired"}, http.Header{}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "expired", normalized.Status)
}

func TestKhaltiFetchStatus(t *testing.T) {
	k := newTestKhalti(t, &mockDoer{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status":"Refunded"}`), nil
	}})

	result, err := k.FetchStatus(context.Background(), "bZQ")
	require.NoError(t, err)
	assert.Equal(t, "refunded", result.Status)
}

func TestKhaltiRefundReference(t *testing.T) {
	k := newTestKhalti(t, nil)
	order := testOrder("10.00")

	result, err := k.Refund(context.Background(), order, order.Total)
	require.NoError(t, err)
	assert.Equal(t, "khalti_ref_"+order.ID.String(), result.Reference)
}
