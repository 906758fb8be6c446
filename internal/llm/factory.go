package llm

import (
	"fmt"
	"time"

	"github.com/user/emrchat/internal/config"
)

const defaultTimeout = 60 * time.Second

// Supported providers
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

func defaultBaseURL(provider string) string {
	switch provider {
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

// Factory creates LLM clients
type Factory struct {
	retryClient *RetryClient
}

// NewFactory creates a new LLM factory. A nil retry client means each
// client builds one from its own configuration.
func NewFactory(retryClient *RetryClient) *Factory {
	return &Factory{retryClient: retryClient}
}

// CreateClient creates an LLM client based on the provider configuration
func (f *Factory) CreateClient(cfg config.LLMConfig) (LLMClient, error) {
	retryClient := f.retryClient
	if retryClient == nil {
		rc := RetryConfigFrom(cfg.Retry)
		rc.Instrument = true
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		retryClient = NewRetryClientWithTimeout(timeout, rc)
	}

	switch cfg.Provider {
	case ProviderGroq, ProviderOpenAI:
		return NewOpenAIClient(cfg, retryClient), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: groq, openai)", cfg.Provider)
	}
}
