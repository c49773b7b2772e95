package openai

import (
	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/services/providers"
)

// NewFromConfig creates an adapter from the application OpenAI settings
func NewFromConfig(cfg config.OpenAIConfig) *OpenAIAdapter {
	pc := providers.DefaultProviderConfig()
	pc.APIKey = cfg.APIKey
	pc.BaseURL = cfg.BaseURL
	pc.MaxRetries = cfg.MaxRetries
	if cfg.Timeout > 0 {
		pc.Timeout = cfg.Timeout
	}
	return NewOpenAIAdapter(pc)
}
