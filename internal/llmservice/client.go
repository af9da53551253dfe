package llmservice

import (
	"fmt"
	"net/http"
	"strings"

	"campus-assistant/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewLLM builds the completion model selected by cfg.Provider
func NewLLM(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("base_url", cfg.BaseURL).
		Str("model", cfg.Model).
		Msg("Creating llm client")

	httpClient := &http.Client{Timeout: cfg.Timeout.Duration}
	switch cfg.Provider {
	case "openai":
		return openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// New builds the gateway described by cfg
func New(cfg *config.LLMConfig) (*Gateway, error) {
	llm, err := NewLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}

	opts := []Option{
		WithRetry(cfg.Retry, cfg.BackoffBase.Duration),
		WithModelFamilies(cfg.ModelFamilies),
	}
	if cfg.RequestsPerSec > 0 {
		opts = append(opts, WithRateLimit(cfg.RequestsPerSec, cfg.Burst))
	}
	if cfg.Provider == "openai" && !cfg.DisableListing {
		opts = append(opts, WithModelLister(NewOpenAIModelLister(cfg.BaseURL, cfg.Key)))
	}
	return NewGateway(llm, cfg.Model, opts...), nil
}

// extractText returns the text of the first non-empty choice
func extractText(resp *llms.ContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		if text := strings.TrimSpace(choice.Content); text != "" {
			return text
		}
	}
	return ""
}
