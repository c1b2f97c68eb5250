package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/models"
	"github.com/zulandar/locallm/internal/settings"
)

// Bounds accepted for generation parameters.
const (
	MinMaxLength   = settings.MinMaxLength
	MaxMaxLength   = settings.MaxMaxLength
	MaxTemperature = settings.MaxTemperature
)

// Params are the knobs passed to a text backend for one call.
type Params struct {
	Model             string  `json:"model"`
	MaxLength         int     `json:"max_length"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// Overrides carries per-request parameter values. Nil fields fall through
// to settings and then to configured defaults.
type Overrides struct {
	MaxLength         *int     `json:"max_length,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
}

// DefaultParams returns the configured generation defaults.
func DefaultParams(cfg config.GenerationConfig) Params {
	return Params{
		Model:             cfg.ModelName,
		MaxLength:         cfg.MaxLength,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		TopK:              cfg.TopK,
		RepetitionPenalty: cfg.RepetitionPenalty,
	}
}

// Validate checks every parameter is in range.
func (p Params) Validate() error {
	var errs []error
	if p.MaxLength < MinMaxLength || p.MaxLength > MaxMaxLength {
		errs = append(errs, fmt.Errorf("max_length must be between %d and %d, got %d", MinMaxLength, MaxMaxLength, p.MaxLength))
	}
	if p.Temperature < 0 || p.Temperature > MaxTemperature {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and %g, got %g", MaxTemperature, p.Temperature))
	}
	if p.TopP <= 0 || p.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be in (0, 1], got %g", p.TopP))
	}
	if p.TopK < 0 {
		errs = append(errs, fmt.Errorf("top_k must not be negative, got %d", p.TopK))
	}
	if p.RepetitionPenalty <= 0 {
		errs = append(errs, fmt.Errorf("repetition_penalty must be positive, got %g", p.RepetitionPenalty))
	}
	if len(errs) > 0 {
		return fmt.Errorf("generation: %w: %w", apperr.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// Info renders p as the generation_info recorded on an assistant message.
func (p Params) Info() map[string]any {
	return map[string]any{
		"model":              p.Model,
		"max_length":         p.MaxLength,
		"temperature":        p.Temperature,
		"top_p":              p.TopP,
		"top_k":              p.TopK,
		"repetition_penalty": p.RepetitionPenalty,
	}
}

// SettingLookup resolves a setting for a conversation, chat scope first.
type SettingLookup interface {
	Lookup(ctx context.Context, key models.SettingKey, chatID *int64) (*settings.View, error)
}

// resolveParams layers request overrides over stored settings over base.
func resolveParams(ctx context.Context, lookup SettingLookup, chatID *int64, base Params, o Overrides) (Params, error) {
	p := base
	if lookup != nil {
		if err := applySettings(ctx, lookup, chatID, &p); err != nil {
			return Params{}, err
		}
	}
	if o.MaxLength != nil {
		p.MaxLength = *o.MaxLength
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		p.TopP = *o.TopP
	}
	if o.TopK != nil {
		p.TopK = *o.TopK
	}
	if o.RepetitionPenalty != nil {
		p.RepetitionPenalty = *o.RepetitionPenalty
	}
	return p, p.Validate()
}

func applySettings(ctx context.Context, lookup SettingLookup, chatID *int64, p *Params) error {
	ints := []struct {
		key models.SettingKey
		dst *int
	}{
		{models.KeyMaxLength, &p.MaxLength},
		{models.KeyTopK, &p.TopK},
	}
	for _, f := range ints {
		v, ok, err := lookupValue(ctx, lookup, f.key, chatID)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = int(v.(int64))
		}
	}

	floats := []struct {
		key models.SettingKey
		dst *float64
	}{
		{models.KeyTemperature, &p.Temperature},
		{models.KeyTopP, &p.TopP},
		{models.KeyRepetitionPenalty, &p.RepetitionPenalty},
	}
	for _, f := range floats {
		v, ok, err := lookupValue(ctx, lookup, f.key, chatID)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v.(float64)
		}
	}
	return nil
}

// lookupValue fetches key and checks it against the key's rule. A missing
// setting reports ok=false.
func lookupValue(ctx context.Context, lookup SettingLookup, key models.SettingKey, chatID *int64) (any, bool, error) {
	view, err := lookup.Lookup(ctx, key, chatID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("generation: setting %s: %w", key, err)
	}
	v, err := settings.CheckValue(key, view.Value)
	if err != nil {
		return nil, false, fmt.Errorf("generation: setting %s: %w", key, err)
	}
	return v, true, nil
}
