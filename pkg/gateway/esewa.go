package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

// esewaSignedFields is the exact field list and order eSewa signs. The
// signature payload is "total_amount=X,transaction_uuid=Y,product_code=Z".
var esewaSignedFields = []string{"total_amount", "transaction_uuid", "product_code"}

// Esewa charges through the hosted form-POST flow. Store amounts are
// converted to NPR at a fixed configured rate before signing.
type Esewa struct {
	cfg        config.EsewaConfig
	appBaseURL string
	rate       decimal.Decimal
	http       httpDoer
	logger     *logger.Logger
}

// NewEsewa validates configuration and returns the gateway. A missing secret
// key disables signing the same way the sandbox does; webhook acceptance then
// depends on the AllowUnverifiedWebhooks flag.
func NewEsewa(cfg config.EsewaConfig, appBaseURL string, logg *logger.Logger) (*Esewa, error) {
	rate := decimal.NewFromFloat(cfg.ConversionRate)
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("esewa conversion rate must be positive")
	}
	if cfg.FormURL == "" {
		return nil, fmt.Errorf("esewa form url is required")
	}
	return &Esewa{
		cfg:        cfg,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		rate:       rate,
		http:       defaultHTTPClient(),
		logger:     logg,
	}, nil
}

// Key implements Gateway.
func (e *Esewa) Key() enums.PaymentProvider {
	return enums.ProviderEsewa
}

// CreateIntent builds the signed form the client posts to eSewa.
func (e *Esewa) CreateIntent(ctx context.Context, order *models.Order, opts IntentOptions) (*Intent, error) {
	amountNPR := e.toNPR(order.Total)
	totalStr := formatAmount(amountNPR)
	transactionUUID := strings.ReplaceAll(uuid.NewString(), "-", "")

	signedValues := map[string]string{
		"total_amount":     totalStr,
		"transaction_uuid": transactionUUID,
		"product_code":     e.cfg.ProductCode,
	}
	signature := e.sign(signedValues)

	origin := strings.TrimRight(opts.FrontendOrigin, "/")
	if origin == "" {
		origin = e.appBaseURL
	}
	successURL := e.redirectURL(e.cfg.SuccessURL, origin+"/payment/success", map[string]string{
		"provider": e.Key().String(),
		"order_id": order.ID.String(),
		"pid":      transactionUUID,
		"amt":      totalStr,
	})
	failureURL := e.redirectURL(e.cfg.FailureURL, origin+"/payment/failure", map[string]string{
		"provider": e.Key().String(),
		"order_id": order.ID.String(),
		"pid":      transactionUUID,
	})

	fields := map[string]string{
		"amount":                  totalStr,
		"tax_amount":              "0.00",
		"total_amount":            totalStr,
		"transaction_uuid":        transactionUUID,
		"product_code":            e.cfg.ProductCode,
		"product_service_charge":  "0.00",
		"product_delivery_charge": "0.00",
		"success_url":             successURL,
		"failure_url":             failureURL,
		"signed_field_names":      strings.Join(esewaSignedFields, ","),
		"signature":               signature,
	}

	return &Intent{
		Provider:          e.Key(),
		ProviderPaymentID: transactionUUID,
		Form: &PaymentForm{
			URL:    e.cfg.FormURL,
			Method: http.MethodPost,
			Fields: fields,
		},
		Amount:   amountNPR,
		Currency: "NPR",
		Raw: map[string]any{
			"success_url": successURL,
			"failure_url": failureURL,
		},
	}, nil
}

// VerifyWebhook checks the HMAC signature when one is supplied, falls back to
// a status lookup against eSewa, and only without either trusts the payload
// when AllowUnverifiedWebhooks is set.
func (e *Esewa) VerifyWebhook(ctx context.Context, payload map[string]any, headers http.Header, rawBody []byte) (bool, *Normalized, error) {
	status := strings.ToLower(payloadString(payload, "status", "state"))
	providerPaymentID := payloadString(payload, "provider_payment_id", "refId", "oid")
	amount := payloadAmount(payload, "amount", "amt", "total_amount")

	sig := headers.Get("X-Signature")
	signatureValid := false
	if e.cfg.SecretKey != "" && sig != "" {
		mac := hmac.New(sha256.New, []byte(e.cfg.SecretKey))
		mac.Write(rawBody)
		expected := hex.EncodeToString(mac.Sum(nil))
		signatureValid = hmac.Equal([]byte(sig), []byte(expected))
		if !signatureValid {
			return false, &Normalized{
				Status:            "invalid_signature",
				ProviderPaymentID: providerPaymentID,
				Raw:               payload,
			}, nil
		}
	}

	apiVerified := false
	var lookup map[string]any
	if e.cfg.SecretKey != "" && providerPaymentID != "" && amount != "" {
		apiVerified, lookup = e.statusLookup(ctx, providerPaymentID, amount)
	}

	trusted := signatureValid || apiVerified
	if !trusted && sig == "" && e.cfg.AllowUnverifiedWebhooks {
		trusted = true
	}

	ok := trusted && IsSuccessStatus(status) && providerPaymentID != ""
	normalized := &Normalized{
		Status:            status,
		ProviderPaymentID: providerPaymentID,
		SignatureVerified: signatureValid,
		APIVerified:       apiVerified,
		Raw:               payload,
	}
	if ok {
		normalized.Status = "succeeded"
	}
	if lookup != nil {
		normalized.Raw = map[string]any{}
		for k, v := range payload {
			normalized.Raw[k] = v
		}
		normalized.Raw["transaction_details"] = lookup
	}
	return ok, normalized, nil
}

// Refund marks the payment refunded. eSewa has no refund API; money moves
// back through merchant support, so this records the reference only.
func (e *Esewa) Refund(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RefundResult, error) {
	return &RefundResult{
		Status:    "refunded",
		Reference: fmt.Sprintf("esewa_ref_%s", order.ID),
	}, nil
}

// FetchStatus polls the transaction status endpoint.
func (e *Esewa) FetchStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	if e.cfg.SecretKey == "" {
		return nil, ErrNotSupported
	}
	verified, raw := e.statusLookup(ctx, providerPaymentID, "")
	status := "processing"
	if raw != nil {
		if s, ok := raw["status"].(string); ok && s != "" {
			status = strings.ToLower(s)
		}
	}
	if verified {
		status = "succeeded"
	}
	return &StatusResult{Status: status, Raw: raw}, nil
}

func (e *Esewa) statusLookup(ctx context.Context, transactionID, amount string) (bool, map[string]any) {
	query := url.Values{}
	query.Set("product_code", e.cfg.ProductCode)
	query.Set("transaction_uuid", transactionID)
	if amount != "" {
		query.Set("total_amount", amount)
	}

	endpoint := strings.TrimRight(e.cfg.StatusURL, "/") + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+e.cfg.SecretKey)

	resp, err := e.http.Do(req)
	if err != nil {
		e.warn(ctx, "esewa status lookup failed", err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return false, nil
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, nil
	}
	remote, _ := body["status"].(string)
	return IsSuccessStatus(remote), body
}

func (e *Esewa) sign(values map[string]string) string {
	if e.cfg.SecretKey == "" {
		return ""
	}
	pairs := make([]string, 0, len(esewaSignedFields))
	for _, field := range esewaSignedFields {
		pairs = append(pairs, field+"="+values[field])
	}
	mac := hmac.New(sha256.New, []byte(e.cfg.SecretKey))
	mac.Write([]byte(strings.Join(pairs, ",")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (e *Esewa) redirectURL(configured, fallback string, params map[string]string) string {
	base := configured
	if base == "" {
		base = fallback
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func (e *Esewa) toNPR(amount decimal.Decimal) decimal.Decimal {
	if amount.LessThanOrEqual(decimal.Zero) {
		return amount
	}
	return amount.Mul(e.rate).Round(2)
}

func (e *Esewa) warn(ctx context.Context, msg string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Error(ctx, msg, err)
}

var _ Gateway = (*Esewa)(nil)
