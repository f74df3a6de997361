package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to OpenAI or any OpenAI-compatible endpoint (Azure, Ollama)
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
	json   bool
}

// NewOpenAIProvider creates a provider for the OpenAI chat completions API
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		name:   "openai",
		json:   true,
	}
}

// NewOllamaProvider creates a provider for a local Ollama server through its OpenAI-compatible API
func NewOllamaProvider(baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig("ollama")
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		name:   "ollama",
		json:   true,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends the prompts and returns the first choice
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		MaxTokens:   2000,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if p.json {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return &Completion{Model: resp.Model, TokensUsed: resp.Usage.TotalTokens}, nil
	}

	return &Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
	}, nil
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && transientStatus(apiErr.HTTPStatusCode) {
		return &TransientError{Provider: p.name, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && transientStatus(reqErr.HTTPStatusCode) {
		return &TransientError{Provider: p.name, Err: err}
	}
	if IsTransient(err) {
		return &TransientError{Provider: p.name, Err: err}
	}
	return fmt.Errorf("%s completion failed: %w", p.name, err)
}
