package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/api/option"
)

// Credential is the decrypted per-user access material for one provider.
type Credential struct {
	APIKey  string
	BaseURL string
}

// ModelFactory constructs the vendor model for a validated provider and model.
type ModelFactory func(ctx context.Context, provider, model string, cred Credential) (llms.Model, error)

// NewVendorModel is the closed set of vendor constructors selected by provider id.
func NewVendorModel(ctx context.Context, provider, model string, cred Credential) (llms.Model, error) {
	switch provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithToken(cred.APIKey),
		}
		if cred.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cred.BaseURL))
		}
		return openai.New(opts...)

	case ProviderGroq:
		baseURL := cred.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return openai.New(
			openai.WithModel(model),
			openai.WithToken(cred.APIKey),
			openai.WithBaseURL(baseURL),
		)

	case ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithModel(model),
			anthropic.WithToken(cred.APIKey),
		}
		if cred.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cred.BaseURL))
		}
		return anthropic.New(opts...)

	case ProviderGoogle:
		opts := []googleai.Option{
			googleai.WithDefaultModel(model),
			googleai.WithAPIKey(cred.APIKey),
		}
		if cred.BaseURL != "" {
			opts = append(opts, withGoogleEndpoint(cred.BaseURL))
		}
		// The returned client must be closed; ModelAdapter.Close does that.
		return googleai.New(ctx, opts...)
	}
	return nil, fmt.Errorf("no constructor for provider %q", provider)
}

// withGoogleEndpoint points the Gemini REST client at a proxy or regional endpoint.
func withGoogleEndpoint(baseURL string) googleai.Option {
	return func(o *googleai.Options) {
		o.ClientOptions = append(o.ClientOptions, option.WithEndpoint(baseURL))
	}
}

// NewMockFactory returns a factory that serves every provider from MockModel.
func NewMockFactory() ModelFactory {
	return func(ctx context.Context, provider, model string, cred Credential) (llms.Model, error) {
		return NewMockModel(), nil
	}
}
