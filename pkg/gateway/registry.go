package gateway

import (
	"context"
	"errors"

	"github.com/pasalhub/pasalmart-backend/pkg/config"
	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

// Registry holds the gateways assembled at startup. Providers with missing
// credentials are simply absent; lookups for them fail like any unknown key.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
}

// NewRegistry wires every configured provider. COD needs no credentials and
// is always present.
func NewRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("gateway registry requires config")
	}

	reg := &Registry{gateways: map[enums.PaymentProvider]Gateway{}}
	reg.gateways[enums.ProviderCOD] = NewCOD()

	esewa, err := NewEsewa(cfg.Esewa, cfg.App.BaseURL, logg)
	if err != nil {
		return nil, err
	}
	reg.gateways[enums.ProviderEsewa] = esewa

	if cfg.Khalti.SecretKey != "" {
		khalti, err := NewKhalti(cfg.Khalti, cfg.App.BaseURL, logg)
		if err != nil {
			return nil, err
		}
		reg.gateways[enums.ProviderKhalti] = khalti
	}

	if cfg.Stripe.SecretKey != "" {
		stripe, err := NewStripe(cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		reg.gateways[enums.ProviderStripe] = stripe
	}

	if cfg.PayPal.ClientID != "" && cfg.PayPal.ClientSecret != "" {
		paypal, err := NewPayPal(cfg.PayPal, logg)
		if err != nil {
			return nil, err
		}
		reg.gateways[enums.ProviderPayPal] = paypal
	}

	if logg != nil {
		logg.Info(ctx, "payment gateway registry initialized")
	}
	return reg, nil
}

// NewRegistryFromGateways builds a registry from explicit gateways, used by
// tests and by callers composing custom provider sets.
func NewRegistryFromGateways(gateways ...Gateway) *Registry {
	reg := &Registry{gateways: map[enums.PaymentProvider]Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		reg.gateways[gw.Key()] = gw
	}
	return reg
}

// Get resolves a provider, failing with a validation error on unknown or
// unconfigured providers.
func (r *Registry) Get(provider enums.PaymentProvider) (Gateway, error) {
	if r == nil {
		return nil, errors.New("gateway registry not initialized")
	}
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider").
			WithDetails(map[string]any{"provider": provider.String()})
	}
	return gw, nil
}

// Providers lists the configured provider keys.
func (r *Registry) Providers() []enums.PaymentProvider {
	if r == nil {
		return nil
	}
	keys := make([]enums.PaymentProvider, 0, len(r.gateways))
	for key := range r.gateways {
		keys = append(keys, key)
	}
	return keys
}
