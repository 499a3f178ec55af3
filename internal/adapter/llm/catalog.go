package llm

import "github.com/xiaot623/chatd/internal/domain"

// Provider ids.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderGroq      = "groq"
)

// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

var providerCatalog = []domain.ProviderInfo{
	{
		Provider:       ProviderOpenAI,
		Name:           "OpenAI",
		Description:    "GPT models from OpenAI",
		Models:         []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo", "gpt-3.5-turbo-16k"},
		DefaultModel:   "gpt-3.5-turbo",
		RequiresAPIKey: true,
	},
	{
		Provider:       ProviderAnthropic,
		Name:           "Anthropic",
		Description:    "Claude models from Anthropic",
		Models:         []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
		DefaultModel:   "claude-3-sonnet-20240229",
		RequiresAPIKey: true,
	},
	{
		Provider:    ProviderGoogle,
		Name:        "Google AI",
		Description: "Gemini models from Google",
		Models: []string{
			"gemini-2.5-pro",
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite-preview-06-17",
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
			"gemini-1.5-pro",
			"gemini-1.5-flash",
			"gemini-1.5-flash-8b",
		},
		DefaultModel:   "gemini-2.5-pro",
		RequiresAPIKey: true,
	},
	{
		Provider:       ProviderGroq,
		Name:           "Groq",
		Description:    "Fast inference with Groq",
		Models:         []string{"mixtral-8x7b-32768", "llama2-70b-4096", "gemma-7b-it"},
		DefaultModel:   "mixtral-8x7b-32768",
		RequiresAPIKey: true,
	},
}
