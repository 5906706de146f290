package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/api/middleware"
	"github.com/pasalhub/pasalmart-backend/api/responses"
	"github.com/pasalhub/pasalmart-backend/api/validators"
	"github.com/pasalhub/pasalmart-backend/internal/checkout"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

type checkoutRequest struct {
	Provider          string                 `json:"provider" validate:"required"`
	ShippingAddressID *uuid.UUID             `json:"shipping_address_id,omitempty"`
	ShippingAddress   *checkout.AddressInput `json:"shipping_address,omitempty"`
	BillingAddressID  *uuid.UUID             `json:"billing_address_id,omitempty"`
	ShippingMethod    string                 `json:"shipping_method,omitempty"`
	CouponCode        string                 `json:"coupon_code,omitempty"`
	ReferralCode      string                 `json:"referral_code,omitempty"`
	Email             string                 `json:"email,omitempty" validate:"omitempty,email"`
}

// Checkout turns the caller's cart into an order. Responds 201 with the
// order and, for online providers, the payment intent to continue with.
func Checkout(service checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParsePaymentProvider(req.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider"))
			return
		}

		result, err := service.Execute(r.Context(), checkout.Input{
			UserID:            userID,
			Provider:          provider,
			ShippingAddressID: req.ShippingAddressID,
			ShippingAddress:   req.ShippingAddress,
			BillingAddressID:  req.BillingAddressID,
			ShippingMethod:    req.ShippingMethod,
			CouponCode:        req.CouponCode,
			ReferralCode:      req.ReferralCode,
			FrontendOrigin:    strings.TrimSpace(r.Header.Get("Origin")),
			Email:             req.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func currentUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity invalid")
	}
	return userID, nil
}
