package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Provider names accepted by NewFromConfig.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewFromConfig creates the LLM client for the configured provider.
// "openai" covers every OpenAI-compatible endpoint (hosted OpenAI, vLLM,
// Ollama, LM Studio); "anthropic" uses the Messages API.
func NewFromConfig(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want %q or %q)", cfg.Provider, ProviderOpenAI, ProviderAnthropic)
	}
}
