package suppliers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

type stubDoer struct {
	status   int
	body     string
	err      error
	requests []*http.Request
	bodies   []string
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(raw))
	} else {
		d.bodies = append(d.bodies, "")
	}
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(strings.NewReader(d.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func testSupplier(apiKey string) *models.Supplier {
	supplier := &models.Supplier{
		ID:         uuid.New(),
		Name:       "Alpha Traders",
		Slug:       "alpha",
		AdapterKey: AdapterKeyHTTP,
		APIBaseURL: "https://alpha.example.com/api/",
	}
	if apiKey != "" {
		supplier.APIKey = &apiKey
	}
	return supplier
}

func placeReq() PlaceOrderRequest {
	return PlaceOrderRequest{
		IdempotencyKey:    "order-1-supplier-1",
		OrderNumber:       1001,
		ShippingAddressID: uuid.New(),
		Lines: []OrderLine{
			{SKU: "SKU-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}
}

func TestPlaceOrderSendsSignedJSONRequest(t *testing.T) {
	doer := &stubDoer{status: http.StatusCreated, body: `{"order_id":"SUP-55","eta_days":4}`}
	adapter := &HTTPAdapter{client: doer}

	result, err := adapter.PlaceOrder(context.Background(), testSupplier("secret-key"), placeReq())
	require.NoError(t, err)
	assert.Equal(t, "SUP-55", result.ExternalID)
	assert.Equal(t, float64(4), result.Raw["eta_days"])

	require.Len(t, doer.requests, 1)
	sent := doer.requests[0]
	assert.Equal(t, http.MethodPost, sent.Method)
	assert.Equal(t, "https://alpha.example.com/api/orders", sent.URL.String())
	assert.Equal(t, "application/json", sent.Header.Get("Content-Type"))
	assert.Equal(t, "secret-key", sent.Header.Get("X-Api-Key"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(doer.bodies[0]), &payload))
	assert.Equal(t, "order-1-supplier-1", payload["idempotency_key"])
	assert.Equal(t, float64(1001), payload["order_number"])
}

func TestPlaceOrderFallsBackToIDField(t *testing.T) {
	doer := &stubDoer{status: http.StatusOK, body: `{"id":"SUP-77"}`}
	adapter := &HTTPAdapter{client: doer}

	result, err := adapter.PlaceOrder(context.Background(), testSupplier(""), placeReq())
	require.NoError(t, err)
	assert.Equal(t, "SUP-77", result.ExternalID)
	assert.Empty(t, doer.requests[0].Header.Get("X-Api-Key"))
}

func TestPlaceOrderRejectedBySupplier(t *testing.T) {
	doer := &stubDoer{status: http.StatusUnprocessableEntity, body: `{"error":"sku unknown"}`}
	adapter := &HTTPAdapter{client: doer}

	_, err := adapter.PlaceOrder(context.Background(), testSupplier(""), placeReq())
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeDependency, appErr.Code())
	details, ok := appErr.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, details["status_code"])
}

func TestPlaceOrderMissingExternalID(t *testing.T) {
	doer := &stubDoer{status: http.StatusOK, body: `{"accepted":true}`}
	adapter := &HTTPAdapter{client: doer}

	_, err := adapter.PlaceOrder(context.Background(), testSupplier(""), placeReq())
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeDependency, appErr.Code())
}

func TestGetOrderStatusNormalizesState(t *testing.T) {
	doer := &stubDoer{status: http.StatusOK, body: `{"status":" Shipped ","tracking":"TRK-9"}`}
	adapter := &HTTPAdapter{client: doer}

	status, err := adapter.GetOrderStatus(context.Background(), testSupplier(""), "SUP 55/a")
	require.NoError(t, err)
	assert.Equal(t, "shipped", status.Status)
	assert.Equal(t, "TRK-9", status.Raw["tracking"])
	assert.Equal(t, "https://alpha.example.com/api/orders/SUP%2055%2Fa", doer.requests[0].URL.String())
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(0)

	adapter, err := registry.Resolve(AdapterKeyHTTP)
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	_, err = registry.Resolve("csv-email")
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	custom := &HTTPAdapter{client: &stubDoer{status: http.StatusOK, body: `{}`}}
	registry.Register("custom", custom)
	resolved, err := registry.Resolve("custom")
	require.NoError(t, err)
	assert.Same(t, Adapter(custom), resolved)
}
