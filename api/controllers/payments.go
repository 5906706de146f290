package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasalhub/pasalmart-backend/api/responses"
	"github.com/pasalhub/pasalmart-backend/api/validators"
	"github.com/pasalhub/pasalmart-backend/internal/settlement"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

// VerifyPayment is the client-initiated settlement path: the frontend lands
// back from the provider redirect and asks the backend to confirm. Provider
// callback parameters ride in the query string.
func VerifyPayment(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		provider, orderID, err := parseProviderAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := service.VerifyPayment(r.Context(), provider, orderID, queryPayload(r.URL.Query()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"order":          outcome.Order,
			"payment_status": outcome.Order.PaymentStatus,
		})
	}
}

// PaymentWebhook receives provider server-to-server callbacks. The raw body
// is preserved for signature verification before any decoding.
func PaymentWebhook(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		provider, orderID, err := parseProviderAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(rawBody))

		payload := map[string]any{}
		if len(bytes.TrimSpace(rawBody)) > 0 {
			if err := json.Unmarshal(rawBody, &payload); err != nil {
				// Some providers post form-encoded callbacks.
				if values, parseErr := url.ParseQuery(string(rawBody)); parseErr == nil {
					payload = queryPayload(values)
				} else {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload malformed"))
					return
				}
			}
		}

		if _, err := service.HandleWebhook(r.Context(), provider, orderID, payload, r.Header, rawBody); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"ok": true})
	}
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RefundPayment issues a full or partial refund for a paid order. Staff only;
// the route is gated by the role middleware.
func RefundPayment(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id invalid"))
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Amount.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative"))
			return
		}

		outcome, err := service.Refund(r.Context(), orderID, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"order":   outcome.Order,
			"payment": outcome.Payment,
		})
	}
}

func parseProviderAndOrder(r *http.Request) (enums.PaymentProvider, uuid.UUID, error) {
	provider, err := enums.ParsePaymentProvider(r.URL.Query().Get("provider"))
	if err != nil {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	orderID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("order_id")))
	if err != nil {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id invalid")
	}
	return provider, orderID, nil
}

func queryPayload(values url.Values) map[string]any {
	payload := make(map[string]any, len(values))
	for key := range values {
		payload[key] = values.Get(key)
	}
	return payload
}
