package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

// PayPal drives the Orders v2 API. Access tokens come from the OAuth
// client-credentials grant and are cached until shortly before expiry.
type PayPal struct {
	cfg    config.PayPalConfig
	http   httpDoer
	logger *logger.Logger
	now    func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPal validates credentials and returns the gateway.
func NewPayPal(cfg config.PayPalConfig, logg *logger.Logger) (*PayPal, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("paypal client credentials are required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("paypal base url is required")
	}
	return &PayPal{
		cfg:    cfg,
		http:   defaultHTTPClient(),
		logger: logg,
		now:    time.Now,
	}, nil
}

// Key implements Gateway.
func (p *PayPal) Key() enums.PaymentProvider {
	return enums.ProviderPayPal
}

// CreateIntent creates a CAPTURE order and returns the approval link.
func (p *PayPal) CreateIntent(ctx context.Context, order *models.Order, opts IntentOptions) (*Intent, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": order.ID.String(),
			"amount": map[string]any{
				"currency_code": p.cfg.Currency,
				"value":         formatAmount(order.Total),
			},
		}},
	}

	body, status, err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "paypal order create failed")
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, paypalError(body, status)
	}

	id, _ := body["id"].(string)
	approveURL := paypalLink(body, "approve")
	if id == "" || approveURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "paypal returned no approval link")
	}

	return &Intent{
		Provider:          p.Key(),
		ProviderPaymentID: id,
		PaymentURL:        approveURL,
		Amount:            order.Total,
		Currency:          p.cfg.Currency,
		Raw: map[string]any{
			"paypal_order_id": id,
		},
	}, nil
}

// VerifyWebhook calls the verify-webhook-signature endpoint with the
// transmission headers and the raw event.
func (p *PayPal) VerifyWebhook(ctx context.Context, payload map[string]any, headers http.Header, rawBody []byte) (bool, *Normalized, error) {
	apiVerified := false
	if p.cfg.WebhookID != "" && headers.Get("Paypal-Transmission-Id") != "" {
		var event map[string]any
		if err := json.Unmarshal(rawBody, &event); err != nil {
			event = payload
		}
		verifyPayload := map[string]any{
			"transmission_id":   headers.Get("Paypal-Transmission-Id"),
			"transmission_time": headers.Get("Paypal-Transmission-Time"),
			"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
			"cert_url":          headers.Get("Paypal-Cert-Url"),
			"auth_algo":         headers.Get("Paypal-Auth-Algo"),
			"webhook_id":        p.cfg.WebhookID,
			"webhook_event":     event,
		}
		body, status, err := p.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verifyPayload)
		if err == nil && status == http.StatusOK {
			verification, _ := body["verification_status"].(string)
			apiVerified = verification == "SUCCESS"
		}
		if !apiVerified {
			return false, &Normalized{Status: "invalid_signature", Raw: payload}, nil
		}
	}

	resource := payload
	if r, ok := payload["resource"].(map[string]any); ok {
		resource = r
	}
	status := strings.ToLower(payloadString(resource, "status", "state"))
	if status == "approved" || status == "captured" {
		status = "completed"
	}
	providerPaymentID := payloadString(resource, "id", "provider_payment_id")

	ok := IsSuccessStatus(status) && providerPaymentID != ""
	if p.cfg.WebhookID != "" {
		ok = ok && apiVerified
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

// Refund is not wired for PayPal; captures must be refunded through the
// merchant dashboard.
func (p *PayPal) Refund(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RefundResult, error) {
	return nil, ErrNotSupported
}

// FetchStatus retrieves the order from the Orders v2 API.
func (p *PayPal) FetchStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	body, status, err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+providerPaymentID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "paypal order fetch failed")
	}
	if status != http.StatusOK {
		return nil, paypalError(body, status)
	}

	state := strings.ToLower(payloadString(body, "status"))
	if IsSuccessStatus(state) {
		state = "succeeded"
	}
	return &StatusResult{Status: state, Raw: body}, nil
}

func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && p.now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token request returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("paypal token response missing access_token")
	}

	p.accessToken = body.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return p.accessToken, nil
}

func (p *PayPal) do(ctx context.Context, method, path string, payload map[string]any) (map[string]any, int, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reqBody *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
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

func paypalLink(body map[string]any, rel string) string {
	links, _ := body["links"].([]any)
	for _, l := range links {
		link, ok := l.(map[string]any)
		if !ok {
			continue
		}
		if r, _ := link["rel"].(string); r == rel {
			href, _ := link["href"].(string)
			return href
		}
	}
	return ""
}

func paypalError(body map[string]any, status int) error {
	message := "paypal request rejected"
	if m, ok := body["message"].(string); ok && m != "" {
		message = m
	}
	return pkgerrors.New(pkgerrors.CodeGateway, message).
		WithDetails(map[string]any{"http_status": status})
}

var _ Gateway = (*PayPal)(nil)
