package suppliers

import (
	"time"

	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
)

// AdapterKeyHTTP is the generic JSON-HTTP integration every supplier gets
// unless configured otherwise.
const AdapterKeyHTTP = "http"

// Registry maps adapter keys to implementations. Built once at startup.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the default registry with the generic HTTP adapter.
func NewRegistry(requestTimeout time.Duration) *Registry {
	return &Registry{adapters: map[string]Adapter{
		AdapterKeyHTTP: NewHTTPAdapter(requestTimeout),
	}}
}

// Register adds or replaces an adapter under the given key.
func (r *Registry) Register(key string, adapter Adapter) {
	if adapter == nil {
		return
	}
	r.adapters[key] = adapter
}

// Resolve returns the adapter for a supplier's adapter key.
func (r *Registry) Resolve(key string) (Adapter, error) {
	if r == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "supplier adapter registry not initialized")
	}
	adapter, ok := r.adapters[key]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown supplier adapter").
			WithDetails(map[string]any{"adapter_key": key})
	}
	return adapter, nil
}
