package llmservice

import (
	"context"
	"slices"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultModelFamilies is the order in which model families are tried when the
// preferred model is not served
var DefaultModelFamilies = []string{"llama-3.1", "llama-3", "llama3", "llama", "gpt-oss", "gpt", "mixtral", "gemma"}

// ModelLister lists the model ids the endpoint serves
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// OpenAIModelLister lists models of an OpenAI-compatible endpoint
type OpenAIModelLister struct {
	client *openai.Client
}

func NewOpenAIModelLister(baseURL, key string) *OpenAIModelLister {
	cfg := openai.DefaultConfig(strings.TrimPrefix(key, "Bearer "))
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModelLister{client: openai.NewClientWithConfig(cfg)}
}

func (l *OpenAIModelLister) ListModels(ctx context.Context) ([]string, error) {
	resp, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// chooseModel picks preferred when served, else the first served model of the
// earliest matching family, else the first served model. An empty list keeps
// preferred.
func chooseModel(names []string, preferred string, families []string) string {
	if len(names) == 0 {
		return preferred
	}
	if preferred != "" && slices.Contains(names, preferred) {
		return preferred
	}
	for _, fam := range families {
		for _, n := range names {
			if strings.Contains(n, fam) {
				return n
			}
		}
	}
	return names[0]
}
