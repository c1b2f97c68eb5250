// Package generation runs one text or image generation turn against a
// model backend and records the result in the conversation.
package generation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/config"
)

// Backend is a model server that turns prompts into text or images.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, p Params) (string, error)
	GenerateImage(ctx context.Context, prompt, model, resolution string) (string, error)
}

// DisabledText is returned by DisabledBackend for every text request.
const DisabledText = "LLM functionality disabled for testing"

// DisabledBackend answers without a model. Images resolve to a placeholder
// URL of the requested size.
type DisabledBackend struct{}

func (DisabledBackend) Name() string { return "disabled" }

func (DisabledBackend) Generate(context.Context, string, Params) (string, error) {
	return DisabledText, nil
}

func (DisabledBackend) GenerateImage(_ context.Context, _, _, resolution string) (string, error) {
	return PlaceholderImageURL(resolution), nil
}

// PlaceholderImageURL returns a placeholder image of the given WxH size.
func PlaceholderImageURL(resolution string) string {
	return "https://placehold.co/" + resolution + "/png"
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(cfg config.GenerationConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "disabled":
		return DisabledBackend{}, nil
	case "openai":
		return NewOpenAIBackend(OpenAIOpts{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
	default:
		return nil, fmt.Errorf("generation: unknown backend %q", cfg.Backend)
	}
}

// ParseResolution splits a "WIDTHxHEIGHT" resolution into its sides.
func ParseResolution(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("generation: %w: resolution %q must be WIDTHxHEIGHT", apperr.ErrValidation, s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("generation: %w: resolution %q must have positive integer sides", apperr.ErrValidation, s)
	}
	return width, height, nil
}
