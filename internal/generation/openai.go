package generation

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOpts configures an OpenAIBackend.
type OpenAIOpts struct {
	BaseURL string // empty uses the public OpenAI endpoint
	APIKey  string
}

// OpenAIBackend talks to any server exposing the OpenAI completions and
// images endpoints.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates an OpenAIBackend.
func NewOpenAIBackend(opts OpenAIOpts) (*OpenAIBackend, error) {
	// An empty key is allowed; local servers commonly ignore it.
	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(clientConfig)}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

// Generate runs a plain completion. top_k and repetition_penalty have no
// completions-API field and are not sent.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	req := openai.CompletionRequest{
		Model:       p.Model,
		Prompt:      prompt,
		MaxTokens:   p.MaxLength,
		Temperature: float32(p.Temperature),
		TopP:        float32(p.TopP),
		Stop:        []string{"\nUser:"},
	}
	resp, err := b.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: no choices returned")
	}
	return resp.Choices[0].Text, nil
}

// GenerateImage requests one image and returns its URL.
func (b *OpenAIBackend) GenerateImage(ctx context.Context, prompt, model, resolution string) (string, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		Size:           resolution,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}
	resp, err := b.client.CreateImage(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("openai image: no image returned")
	}
	return resp.Data[0].URL, nil
}
