package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()
	cfg := models.AIConfig{
		DefaultProvider: "ollama",
		Ollama:          models.OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
	}

	p, err := NewProvider(ctx, cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	_, err = NewProvider(ctx, cfg, "openai")
	assert.Error(t, err)

	cfg.OpenAI = models.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"}
	p, err = NewProvider(ctx, cfg, "openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(ctx, cfg, "gemini")
	assert.Error(t, err)

	_, err = NewProvider(ctx, cfg, "claude")
	assert.ErrorContains(t, err, "unsupported AI provider")
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.True(t, IsTransient(&TransientError{Provider: "openai", Err: errors.New("503")}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", &TransientError{Provider: "gemini"})))

	assert.True(t, transientStatus(http.StatusTooManyRequests))
	assert.True(t, transientStatus(http.StatusBadGateway))
	assert.False(t, transientStatus(http.StatusBadRequest))
}
