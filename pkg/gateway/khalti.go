package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

// Khalti charges through the ePayment hosted page. Amounts go over the wire
// in paisa. Webhooks carry either a pidx (ePayment lookup) or a legacy token.
type Khalti struct {
	cfg        config.KhaltiConfig
	appBaseURL string
	http       httpDoer
	logger     *logger.Logger
}

// NewKhalti validates configuration and returns the gateway.
func NewKhalti(cfg config.KhaltiConfig, appBaseURL string, logg *logger.Logger) (*Khalti, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("khalti secret key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("khalti base url is required")
	}
	return &Khalti{
		cfg:        cfg,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		http:       defaultHTTPClient(),
		logger:     logg,
	}, nil
}

// Key implements Gateway.
func (k *Khalti) Key() enums.PaymentProvider {
	return enums.ProviderKhalti
}

// CreateIntent calls the ePayment initiate API and returns the hosted page.
func (k *Khalti) CreateIntent(ctx context.Context, order *models.Order, opts IntentOptions) (*Intent, error) {
	amountPaisa := order.Total.Mul(decimal.NewFromInt(100)).IntPart()
	returnURL := k.cfg.ReturnURL
	if returnURL == "" {
		returnURL = fmt.Sprintf("%s/api/v1/payments/verify?provider=khalti&order_id=%s&amount=%s",
			k.appBaseURL, order.ID, formatAmount(order.Total))
	}
	websiteURL := k.cfg.WebsiteURL
	if websiteURL == "" {
		websiteURL = k.appBaseURL
	}

	payload := map[string]any{
		"return_url":          returnURL,
		"website_url":         websiteURL,
		"amount":              amountPaisa,
		"purchase_order_id":   order.ID.String(),
		"purchase_order_name": fmt.Sprintf("Order #%d", order.OrderNumber),
	}

	body, status, err := k.post(ctx, k.cfg.BaseURL+"/epayment/initiate/", payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "khalti initiate failed")
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "khalti initiate rejected").
			WithDetails(map[string]any{"http_status": status})
	}

	pidx, _ := body["pidx"].(string)
	paymentURL, _ := body["payment_url"].(string)
	if pidx == "" || paymentURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "khalti initiate returned no payment url")
	}

	return &Intent{
		Provider:          k.Key(),
		ProviderPaymentID: pidx,
		PaymentURL:        paymentURL,
		Amount:            order.Total,
		Currency:          "NPR",
		Raw: map[string]any{
			"pidx":       pidx,
			"return_url": returnURL,
		},
	}, nil
}

// VerifyWebhook prefers API confirmation (pidx lookup, or the legacy token
// verify when an amount is present) and otherwise trusts the reported status.
// Khalti callbacks carry no signature to check.
func (k *Khalti) VerifyWebhook(ctx context.Context, payload map[string]any, headers http.Header, rawBody []byte) (bool, *Normalized, error) {
	status := strings.ToLower(payloadString(payload, "status"))
	token := payloadString(payload, "token")
	pidx := payloadString(payload, "pidx")
	providerPaymentID := payloadString(payload, "provider_payment_id")
	if providerPaymentID == "" {
		providerPaymentID = pidx
	}
	if providerPaymentID == "" {
		providerPaymentID = token
	}

	apiVerified := false
	switch {
	case token != "":
		if amt := payloadAmount(payload, "amount", "amt", "total_amount"); amt != "" {
			if parsed, err := decimal.NewFromString(amt); err == nil {
				paisa := parsed.Mul(decimal.NewFromInt(100)).IntPart()
				_, httpStatus, err := k.post(ctx, k.cfg.BaseURL+"/payment/verify/", map[string]any{
					"token":  token,
					"amount": paisa,
				})
				apiVerified = err == nil && (httpStatus == http.StatusOK || httpStatus == http.StatusCreated)
			}
		}
	case pidx != "":
		body, httpStatus, err := k.post(ctx, k.cfg.BaseURL+"/epayment/lookup/", map[string]any{"pidx": pidx})
		if err == nil && (httpStatus == http.StatusOK || httpStatus == http.StatusCreated) {
			state := payloadString(body, "status", "state")
			apiVerified = IsSuccessStatus(state)
		}
	}

	ok := apiVerified
	if !ok {
		ok = IsSuccessStatus(status) && providerPaymentID != ""
	}

	normalized := &Normalized{
		Status:            status,
		ProviderPaymentID: providerPaymentID,
		APIVerified:       apiVerified,
		Raw:               payload,
	}
	if ok {
		normalized.Status = "succeeded"
	}
	return ok, normalized, nil
}

// Refund records the reference; money moves back through Khalti merchant
// support rather than an API.
func (k *Khalti) Refund(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RefundResult, error) {
	return &RefundResult{
		Status:    "refunded",
		Reference: fmt.Sprintf("khalti_ref_%s", order.ID),
	}, nil
}

// FetchStatus looks the pidx up through the ePayment API.
func (k *Khalti) FetchStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	body, httpStatus, err := k.post(ctx, k.cfg.BaseURL+"/epayment/lookup/", map[string]any{"pidx": providerPaymentID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "khalti lookup failed")
	}
	if httpStatus != http.StatusOK && httpStatus != http.StatusCreated {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "khalti lookup rejected").
			WithDetails(map[string]any{"http_status": httpStatus})
	}
	state := strings.ToLower(payloadString(body, "status", "state"))
	if IsSuccessStatus(state) {
		state = "succeeded"
	}
	return &StatusResult{Status: state, Raw: body}, nil
}

func (k *Khalti) post(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+k.cfg.SecretKey)

	resp, err := k.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		body = map[string]any{}
	}
	return body, resp.StatusCode, nil
}

var _ Gateway = (*Khalti)(nil)
