package suppliers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPAdapter is the generic JSON-over-HTTP supplier integration: POST
// /orders to place, GET /orders/{id} to poll. The supplier row carries the
// base URL and API key.
type HTTPAdapter struct {
	client httpDoer
}

// NewHTTPAdapter builds the generic adapter with the given request timeout.
func NewHTTPAdapter(timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPAdapter{client: &http.Client{Timeout: timeout}}
}

func (a *HTTPAdapter) PlaceOrder(ctx context.Context, supplier *models.Supplier, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode supplier order")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, supplierURL(supplier, "/orders"), bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build supplier request")
	}
	decorate(httpReq, supplier)

	payload, status, err := a.do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "forward order to supplier")
	}
	if status < 200 || status >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier rejected order").
			WithDetails(map[string]any{"supplier": supplier.Slug, "status_code": status})
	}

	externalID, _ := payload["order_id"].(string)
	if externalID == "" {
		externalID, _ = payload["id"].(string)
	}
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier response missing order id").
			WithDetails(map[string]any{"supplier": supplier.Slug})
	}
	return &PlaceOrderResult{ExternalID: externalID, Raw: payload}, nil
}

func (a *HTTPAdapter) GetOrderStatus(ctx context.Context, supplier *models.Supplier, externalID string) (*OrderStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		supplierURL(supplier, "/orders/"+url.PathEscape(externalID)), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build supplier request")
	}
	decorate(httpReq, supplier)

	payload, status, err := a.do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch supplier order status")
	}
	if status < 200 || status >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier status lookup failed").
			WithDetails(map[string]any{"supplier": supplier.Slug, "status_code": status})
	}

	state, _ := payload["status"].(string)
	return &OrderStatus{Status: strings.ToLower(strings.TrimSpace(state)), Raw: payload}, nil
}

func (a *HTTPAdapter) do(req *http.Request) (map[string]any, int, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read supplier response: %w", err)
	}
	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("decode supplier response: %w", err)
		}
	}
	return payload, resp.StatusCode, nil
}

func supplierURL(supplier *models.Supplier, path string) string {
	return strings.TrimRight(supplier.APIBaseURL, "/") + path
}

func decorate(req *http.Request, supplier *models.Supplier) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if supplier.APIKey != nil && *supplier.APIKey != "" {
		req.Header.Set("X-Api-Key", *supplier.APIKey)
	}
}
