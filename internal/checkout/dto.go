package checkout

import (
	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/pkg/db/models"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/gateway"
)

// AddressInput is an inline address payload accepted in place of a stored
// address id.
type AddressInput struct {
	FullName   string  `json:"full_name" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	Region     *string `json:"region,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Country    string  `json:"country,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// Input is the checkout request. The cart itself is read from storage; the
// body only carries destination, shipping, provider and coupon choices.
type Input struct {
	UserID            uuid.UUID
	Provider          enums.PaymentProvider
	ShippingAddressID *uuid.UUID
	ShippingAddress   *AddressInput
	BillingAddressID  *uuid.UUID
	ShippingMethod    string
	CouponCode        string
	ReferralCode      string
	FrontendOrigin    string
	Email             string
}

// Result is a completed checkout: the persisted order plus, for online
// providers, the intent the client continues payment with.
type Result struct {
	Order  *models.Order   `json:"order"`
	Intent *gateway.Intent `json:"payment_intent,omitempty"`
}
