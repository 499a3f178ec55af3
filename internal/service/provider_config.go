package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/chatd/internal/adapter/llm"
	"github.com/xiaot623/chatd/internal/domain"
)

// ListProviders returns the static provider catalog.
func (s *Service) ListProviders() []domain.ProviderInfo {
	return s.adapters.ListProviders()
}

// ListProviderConfigs lists the user's provider configurations.
func (s *Service) ListProviderConfigs(ctx context.Context, userID string) ([]domain.ProviderConfigResponse, error) {
	configs, err := s.store.ListProviderConfigs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}
	out := make([]domain.ProviderConfigResponse, 0, len(configs))
	for i := range configs {
		out = append(out, toProviderConfigResponse(&configs[i]))
	}
	return out, nil
}

// GetProviderConfig returns one of the user's provider configurations.
func (s *Service) GetProviderConfig(ctx context.Context, userID, configID string) (*domain.ProviderConfigResponse, error) {
	cfg, err := s.ownedProviderConfig(ctx, userID, configID)
	if err != nil {
		return nil, err
	}
	resp := toProviderConfigResponse(cfg)
	return &resp, nil
}

// CreateProviderConfig stores a provider configuration with its key sealed.
// The first configuration of a user becomes the default.
func (s *Service) CreateProviderConfig(ctx context.Context, userID string, req domain.ProviderConfigRequest) (*domain.ProviderConfigResponse, error) {
	model := ""
	if req.Model != nil {
		model = *req.Model
	}
	model, err := s.adapters.Validate(req.Provider, model)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListProviderConfigs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}

	cfg := &domain.ProviderConfig{
		ID:        "cfg_" + uuid.New().String()[:8],
		UserID:    userID,
		Provider:  req.Provider,
		Model:     model,
		IsDefault: len(existing) == 0,
		Settings:  req.Settings,
		CreatedAt: time.Now().UTC(),
	}
	if req.IsDefault != nil && len(existing) > 0 {
		cfg.IsDefault = *req.IsDefault
	}
	if req.APIKey != nil && *req.APIKey != "" {
		if cfg.EncryptedKey, err = s.sealer.Seal(*req.APIKey); err != nil {
			return nil, fmt.Errorf("failed to seal api key: %w", err)
		}
	}

	if err := s.store.CreateProviderConfig(ctx, cfg); err != nil {
		return nil, err
	}
	if cfg.IsDefault {
		if err := s.store.ClearDefaultProviderConfigs(ctx, userID, cfg.ID); err != nil {
			return nil, fmt.Errorf("failed to update default provider: %w", err)
		}
	}
	resp := toProviderConfigResponse(cfg)
	return &resp, nil
}

// UpdateProviderConfig applies a partial update. An empty api_key clears the key.
func (s *Service) UpdateProviderConfig(ctx context.Context, userID, configID string, req domain.ProviderConfigRequest) (*domain.ProviderConfigResponse, error) {
	cfg, err := s.ownedProviderConfig(ctx, userID, configID)
	if err != nil {
		return nil, err
	}
	if req.Provider != "" && req.Provider != cfg.Provider {
		return nil, domain.NewError(domain.KindInvalidRequest, "provider of a configuration cannot be changed")
	}
	if req.Model != nil {
		if cfg.Model, err = s.adapters.Validate(cfg.Provider, *req.Model); err != nil {
			return nil, err
		}
	}
	if req.APIKey != nil {
		cfg.EncryptedKey = ""
		if *req.APIKey != "" {
			if cfg.EncryptedKey, err = s.sealer.Seal(*req.APIKey); err != nil {
				return nil, fmt.Errorf("failed to seal api key: %w", err)
			}
		}
	}
	if req.Settings != nil {
		cfg.Settings = req.Settings
	}
	if req.IsDefault != nil {
		cfg.IsDefault = *req.IsDefault
	}

	if err := s.store.UpdateProviderConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to update provider config: %w", err)
	}
	if cfg.IsDefault {
		if err := s.store.ClearDefaultProviderConfigs(ctx, userID, cfg.ID); err != nil {
			return nil, fmt.Errorf("failed to update default provider: %w", err)
		}
	}
	resp := toProviderConfigResponse(cfg)
	return &resp, nil
}

// DeleteProviderConfig deletes one of the user's provider configurations.
func (s *Service) DeleteProviderConfig(ctx context.Context, userID, configID string) error {
	if _, err := s.ownedProviderConfig(ctx, userID, configID); err != nil {
		return err
	}
	if err := s.store.DeleteProviderConfig(ctx, configID); err != nil {
		return fmt.Errorf("failed to delete provider config: %w", err)
	}
	return nil
}

// SetDefaultProviderConfig makes configID the user's only default.
func (s *Service) SetDefaultProviderConfig(ctx context.Context, userID, configID string) (*domain.ProviderConfigResponse, error) {
	isDefault := true
	return s.UpdateProviderConfig(ctx, userID, configID, domain.ProviderConfigRequest{IsDefault: &isDefault})
}

// TestProviderConfig checks a configuration with a one-token request.
// Upstream failures are reported in the result, not as an error.
func (s *Service) TestProviderConfig(ctx context.Context, userID, configID string) (*domain.ProviderConfigTestResult, error) {
	cfg, err := s.ownedProviderConfig(ctx, userID, configID)
	if err != nil {
		return nil, err
	}
	cred, err := s.openCredential(cfg)
	if err != nil {
		return &domain.ProviderConfigTestResult{Status: "error", Message: err.Error()}, nil
	}
	adapter, err := s.adapters.Resolve(ctx, cfg.Provider, cfg.Model, cred)
	if err != nil {
		return &domain.ProviderConfigTestResult{Status: "error", Message: err.Error()}, nil
	}
	defer closeAdapter(adapter)
	_, err = adapter.Generate(ctx, &llm.Request{
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		MaxTokens: 1,
	})
	if err != nil {
		return &domain.ProviderConfigTestResult{Status: "error", Message: err.Error()}, nil
	}
	return &domain.ProviderConfigTestResult{
		Status:  "success",
		Message: fmt.Sprintf("%s configuration is working", cfg.Provider),
	}, nil
}

func (s *Service) ownedProviderConfig(ctx context.Context, userID, configID string) (*domain.ProviderConfig, error) {
	cfg, err := s.store.GetProviderConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	if cfg == nil {
		return nil, domain.NewError(domain.KindNotFound, "provider config %s not found", configID)
	}
	if cfg.UserID != userID {
		return nil, domain.NewError(domain.KindForbidden, "provider config %s belongs to another user", configID)
	}
	return cfg, nil
}

func (s *Service) defaultProviderConfig(ctx context.Context, userID string) (*domain.ProviderConfig, error) {
	configs, err := s.store.ListProviderConfigs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}
	for i := range configs {
		if configs[i].IsDefault {
			return &configs[i], nil
		}
	}
	return nil, nil
}

// credentialFor returns the decrypted credential of the user for provider,
// or nil when none is stored.
func (s *Service) credentialFor(ctx context.Context, userID, provider string) (*llm.Credential, error) {
	cfg, err := s.store.GetProviderConfigForProvider(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	if cfg == nil {
		return nil, nil
	}
	cred, err := s.openCredential(cfg)
	if err != nil {
		log.Printf("WARN: unreadable api key for provider config %s: %v", cfg.ID, err)
		return nil, domain.WrapError(domain.KindMissingCredential, err, "stored API key for provider %q cannot be read", provider)
	}
	return cred, nil
}

func (s *Service) openCredential(cfg *domain.ProviderConfig) (*llm.Credential, error) {
	cred := &llm.Credential{BaseURL: cfg.ParseSettings().BaseURL}
	if !cfg.HasAPIKey() {
		return cred, nil
	}
	key, err := s.sealer.Open(cfg.EncryptedKey)
	if err != nil {
		return nil, err
	}
	cred.APIKey = key
	return cred, nil
}

func toProviderConfigResponse(cfg *domain.ProviderConfig) domain.ProviderConfigResponse {
	return domain.ProviderConfigResponse{ProviderConfig: *cfg, HasAPIKey: cfg.HasAPIKey()}
}
