// Package service implements chatd's use cases on top of the store, the
// provider adapters and the tool registry.
package service

import (
	"context"
	"sync"

	"github.com/xiaot623/chatd/internal/adapter/llm"
	"github.com/xiaot623/chatd/internal/config"
	"github.com/xiaot623/chatd/internal/domain"
	"github.com/xiaot623/chatd/internal/policy"
	"github.com/xiaot623/chatd/internal/repository"
	"github.com/xiaot623/chatd/internal/secret"
	"github.com/xiaot623/chatd/internal/tools"
)

// AdapterResolver resolves provider adapters. *llm.Registry implements it.
type AdapterResolver interface {
	ListProviders() []domain.ProviderInfo
	Validate(provider, model string) (string, error)
	Resolve(ctx context.Context, provider, model string, cred *llm.Credential) (llm.Adapter, error)
}

type Service struct {
	store        repository.Store
	adapters     AdapterResolver
	tools        *tools.Registry
	policyEngine *policy.Engine
	sealer       *secret.Sealer
	config       *config.Config
	limiters     *userLimiters

	turnsMu sync.Mutex
	turns   map[string]*activeTurn
}

// New creates a Service. policyEngine may be nil, in which case every enabled
// tool is advertised.
func New(store repository.Store, adapters AdapterResolver, toolRegistry *tools.Registry, policyEngine *policy.Engine, sealer *secret.Sealer, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		adapters:     adapters,
		tools:        toolRegistry,
		policyEngine: policyEngine,
		sealer:       sealer,
		config:       cfg,
		limiters:     newUserLimiters(cfg.StreamRatePerSec, cfg.StreamBurst),
		turns:        make(map[string]*activeTurn),
	}
}
