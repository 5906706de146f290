package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

func TestRegistryGet(t *testing.T) {
	reg := NewRegistryFromGateways(NewCOD())

	gw, err := reg.Get(enums.ProviderCOD)
	require.NoError(t, err)
	assert.Equal(t, enums.ProviderCOD, gw.Key())

	_, err = reg.Get(enums.ProviderStripe)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRegistryProviders(t *testing.T) {
	cod := NewCOD()
	esewa := newTestEsewa(t, nil)
	reg := NewRegistryFromGateways(cod, esewa)

	providers := reg.Providers()
	assert.Len(t, providers, 2)
	assert.Contains(t, providers, enums.ProviderCOD)
	assert.Contains(t, providers, enums.ProviderEsewa)
}
