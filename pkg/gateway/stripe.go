package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

const (
	stripeAPIBase          = "https://api.stripe.com/v1"
	stripeSignatureHeader  = "Stripe-Signature"
	stripeWebhookTolerance = 5 * time.Minute
)

// Stripe talks to the REST API with form-encoded requests. Card charges
// settle in cents; webhook events carry a signed Stripe-Signature header.
type Stripe struct {
	cfg    config.StripeConfig
	http   httpDoer
	logger *logger.Logger
	now    func() time.Time
}

// NewStripe validates the secret key against the configured environment.
func NewStripe(cfg config.StripeConfig, logg *logger.Logger) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if cfg.Environment() == config.AppEnvProd && strings.HasPrefix(cfg.SecretKey, "sk_test_") {
		return nil, fmt.Errorf("stripe test key supplied for production environment")
	}
	return &Stripe{
		cfg:    cfg,
		http:   defaultHTTPClient(),
		logger: logg,
		now:    time.Now,
	}, nil
}

// Key implements Gateway.
func (s *Stripe) Key() enums.PaymentProvider {
	return enums.ProviderStripe
}

// CreateIntent creates a PaymentIntent for the order total in cents.
func (s *Stripe) CreateIntent(ctx context.Context, order *models.Order, opts IntentOptions) (*Intent, error) {
	cents := order.Total.Mul(decimal.NewFromInt(100)).IntPart()

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(cents, 10))
	form.Set("currency", "usd")
	form.Set("metadata[order_id]", order.ID.String())
	form.Set("automatic_payment_methods[enabled]", "true")
	if opts.Email != "" {
		form.Set("receipt_email", opts.Email)
	}

	body, status, err := s.do(ctx, http.MethodPost, "/payment_intents", form)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "stripe payment intent failed")
	}
	if status >= http.StatusBadRequest {
		return nil, stripeError(body, status)
	}

	id, _ := body["id"].(string)
	clientSecret, _ := body["client_secret"].(string)
	if id == "" || clientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "stripe returned incomplete payment intent")
	}

	return &Intent{
		Provider:          s.Key(),
		ProviderPaymentID: id,
		ClientSecret:      clientSecret,
		Amount:            order.Total,
		Currency:          "USD",
		Raw: map[string]any{
			"payment_intent_id": id,
		},
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw body and
// accepts succeeded payment_intent events.
func (s *Stripe) VerifyWebhook(ctx context.Context, payload map[string]any, headers http.Header, rawBody []byte) (bool, *Normalized, error) {
	signatureValid := false
	header := headers.Get(stripeSignatureHeader)
	if header != "" && s.cfg.WebhookSecret != "" {
		signatureValid = s.verifySignature(header, rawBody)
		if !signatureValid {
			return false, &Normalized{Status: "invalid_signature", Raw: payload}, nil
		}
	}

	eventType := payloadString(payload, "type")
	object := payload
	if data, ok := payload["data"].(map[string]any); ok {
		if obj, ok := data["object"].(map[string]any); ok {
			object = obj
		}
	}

	status := strings.ToLower(payloadString(object, "status", "state"))
	providerPaymentID := payloadString(object, "id", "provider_payment_id")

	ok := signatureValid && IsSuccessStatus(status) && providerPaymentID != ""
	if eventType != "" && !strings.HasPrefix(eventType, "payment_intent.") {
		ok = false
	}

	normalized := &Normalized{
		Status:            status,
		ProviderPaymentID: providerPaymentID,
		SignatureVerified: signatureValid,
		Raw:               payload,
	}
	if ok {
		normalized.Status = "succeeded"
	}
	return ok, normalized, nil
}

// Refund refunds the full payment intent.
func (s *Stripe) Refund(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RefundResult, error) {
	providerPaymentID := latestProviderPaymentID(order)
	if providerPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no stripe payment to refund")
	}

	form := url.Values{}
	form.Set("payment_intent", providerPaymentID)
	if amount.IsPositive() {
		form.Set("amount", strconv.FormatInt(amount.Mul(decimal.NewFromInt(100)).IntPart(), 10))
	}

	body, status, err := s.do(ctx, http.MethodPost, "/refunds", form)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "stripe refund failed")
	}
	if status >= http.StatusBadRequest {
		return nil, stripeError(body, status)
	}

	refundID, _ := body["id"].(string)
	refundStatus, _ := body["status"].(string)
	if refundStatus == "" {
		refundStatus = "refunded"
	}
	return &RefundResult{
		Status:    refundStatus,
		Reference: refundID,
		Raw:       body,
	}, nil
}

// FetchStatus retrieves the payment intent.
func (s *Stripe) FetchStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	body, status, err := s.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(providerPaymentID), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "stripe status fetch failed")
	}
	if status >= http.StatusBadRequest {
		return nil, stripeError(body, status)
	}

	state := strings.ToLower(payloadString(body, "status"))
	if IsSuccessStatus(state) {
		state = "succeeded"
	}
	return &StatusResult{Status: state, Raw: body}, nil
}

// verifySignature checks the t=/v1= pairs in the header. The signed payload
// is "<timestamp>.<raw body>" and the timestamp must be within tolerance.
func (s *Stripe) verifySignature(header string, rawBody []byte) bool {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := s.now().Sub(time.Unix(ts, 0))
	if age > stripeWebhookTolerance || age < -stripeWebhookTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1 {
			return true
		}
	}
	return false
}

func (s *Stripe) do(ctx context.Context, method, path string, form url.Values) (map[string]any, int, error) {
	var reqBody *strings.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	} else {
		reqBody = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, stripeAPIBase+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.http.Do(req)
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

func stripeError(body map[string]any, status int) error {
	message := "stripe request rejected"
	if errObj, ok := body["error"].(map[string]any); ok {
		if m, ok := errObj["message"].(string); ok && m != "" {
			message = m
		}
	}
	return pkgerrors.New(pkgerrors.CodeGateway, message).
		WithDetails(map[string]any{"http_status": status})
}

var _ Gateway = (*Stripe)(nil)
