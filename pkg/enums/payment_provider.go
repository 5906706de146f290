package enums

import (
	"fmt"
	"strings"
)

// PaymentProvider identifies the gateway an order is charged through.
type PaymentProvider string

const (
	ProviderEsewa  PaymentProvider = "esewa"
	ProviderKhalti PaymentProvider = "khalti"
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
	ProviderCOD    PaymentProvider = "cod"
)

var validPaymentProviders = []PaymentProvider{
	ProviderEsewa,
	ProviderKhalti,
	ProviderStripe,
	ProviderPayPal,
	ProviderCOD,
}

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
// Matching is case-insensitive since provider names arrive from query
// strings and webhook payloads.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
