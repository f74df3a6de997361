package ai

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// Provider is an external text-completion engine returning a JSON invoice
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

// Completion is a raw provider answer
type Completion struct {
	Text       string
	TokensUsed int
	Model      string
}

// TransientError marks a provider failure worth one more attempt (timeouts, 429, 5xx)
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func transientStatus(code int) bool {
	return code == 429 || code >= 500
}

// NewProvider creates the named provider ("openai", "gemini", "ollama").
// An empty name selects cfg.DefaultProvider. Gemini providers must be closed by the caller.
func NewProvider(ctx context.Context, cfg models.AIConfig, name string) (Provider, error) {
	if name == "" {
		name = cfg.DefaultProvider
	}
	switch name {
	case "openai":
		if cfg.OpenAI.APIKey == "" && cfg.OpenAI.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil

	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		p, err := NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "ollama":
		return NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model), nil

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", name)
	}
}
