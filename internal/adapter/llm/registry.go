package llm

import (
	"context"
	"io"
	"log"

	"github.com/xiaot623/chatd/internal/domain"
)

// Registry maps a provider id and a user's credential to a constructed Adapter.
// It owns the static provider catalog.
type Registry struct {
	catalog []domain.ProviderInfo
	index   map[string]domain.ProviderInfo
	factory ModelFactory
	mock    bool
}

// NewRegistry creates a registry over the built-in catalog. In mock mode every
// provider is served by MockModel and no credential is required.
func NewRegistry(mock bool) *Registry {
	if mock {
		log.Println("CHATD_MODE=MOCK detected, using mock LLM adapters")
		return NewRegistryWithFactory(NewMockFactory(), true)
	}
	return NewRegistryWithFactory(NewVendorModel, false)
}

// NewRegistryWithFactory creates a registry that builds models with factory.
func NewRegistryWithFactory(factory ModelFactory, mock bool) *Registry {
	r := &Registry{
		catalog: providerCatalog,
		index:   make(map[string]domain.ProviderInfo, len(providerCatalog)),
		factory: factory,
		mock:    mock,
	}
	for _, p := range providerCatalog {
		r.index[p.Provider] = p
	}
	return r
}

// ListProviders returns the static catalog. It never calls the network.
func (r *Registry) ListProviders() []domain.ProviderInfo {
	out := make([]domain.ProviderInfo, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// Provider returns the catalog entry of provider.
func (r *Registry) Provider(provider string) (domain.ProviderInfo, bool) {
	p, ok := r.index[provider]
	return p, ok
}

// Validate checks a provider and model against the catalog and returns the
// effective model. An empty model selects the provider default.
func (r *Registry) Validate(provider, model string) (string, error) {
	info, ok := r.index[provider]
	if !ok {
		return "", domain.NewError(domain.KindUnknownProvider, "unknown provider %q", provider)
	}
	if model == "" {
		return info.DefaultModel, nil
	}
	if !info.SupportsModel(model) {
		return "", domain.NewError(domain.KindUnknownProvider, "model %q is not supported by provider %q", model, provider)
	}
	return model, nil
}

// Resolve returns an Adapter for provider and model using cred.
// Catalog validation happens before any constructor runs. The caller owns the
// returned adapter and must Close it once the turn is over.
func (r *Registry) Resolve(ctx context.Context, provider, model string, cred *Credential) (Adapter, error) {
	model, err := r.Validate(provider, model)
	if err != nil {
		return nil, err
	}
	info := r.index[provider]

	var c Credential
	if cred != nil {
		c = *cred
	}
	if !r.mock && info.RequiresAPIKey && c.APIKey == "" {
		return nil, domain.NewError(domain.KindMissingCredential, "no API key configured for provider %q", provider)
	}

	m, err := r.factory(ctx, provider, model, c)
	if err != nil {
		// googleai returns a half-built client alongside its error.
		if closer, ok := m.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, domain.WrapError(domain.KindUpstreamAuth, err, "failed to initialise %s client", provider)
	}
	return NewModelAdapter(provider, model, m), nil
}
