package settings

import (
	"fmt"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/models"
)

// Bounds for the generation parameter settings.
const (
	MinMaxLength   = 10
	MaxMaxLength   = 5000
	MaxTemperature = 2.0
)

// keyRule pins a setting key to one value type and, optionally, a check on
// the converted value.
type keyRule struct {
	valueType models.ValueType
	check     func(v any) error
}

var keyRules = map[models.SettingKey]keyRule{
	models.KeyModelName: {models.TypeString, func(v any) error {
		if name, _ := v.(string); !models.SupportedModel(models.ModelTypeText, name) {
			return fmt.Errorf("model_name %q is not a supported text model", v)
		}
		return nil
	}},
	models.KeyMaxLength: {models.TypeInteger, func(v any) error {
		if n := v.(int64); n < MinMaxLength || n > MaxMaxLength {
			return fmt.Errorf("max_length must be between %d and %d, got %d", MinMaxLength, MaxMaxLength, n)
		}
		return nil
	}},
	models.KeyTemperature: {models.TypeFloat, func(v any) error {
		if f := v.(float64); f < 0 || f > MaxTemperature {
			return fmt.Errorf("temperature must be between 0 and %g, got %g", MaxTemperature, f)
		}
		return nil
	}},
	models.KeyTopP: {models.TypeFloat, func(v any) error {
		if f := v.(float64); f <= 0 || f > 1 {
			return fmt.Errorf("top_p must be in (0, 1], got %g", f)
		}
		return nil
	}},
	models.KeyTopK: {models.TypeInteger, func(v any) error {
		if n := v.(int64); n < 0 {
			return fmt.Errorf("top_k must not be negative, got %d", n)
		}
		return nil
	}},
	models.KeyRepetitionPenalty: {models.TypeFloat, func(v any) error {
		if f := v.(float64); f <= 0 {
			return fmt.Errorf("repetition_penalty must be positive, got %g", f)
		}
		return nil
	}},
	models.KeyRateLimit: {models.TypeInteger, func(v any) error {
		if n := v.(int64); n < 0 {
			return fmt.Errorf("rate_limit must not be negative, got %d", n)
		}
		return nil
	}},
}

// RequiredType returns the value type a key must be stored with. Keys
// without a rule report ok=false and accept any type.
func RequiredType(key models.SettingKey) (models.ValueType, bool) {
	r, ok := keyRules[key]
	return r.valueType, ok
}

// CheckValue converts raw to the type key requires and applies its range
// check. Keys without a rule accept anything. Errors wrap ErrValidation.
func CheckValue(key models.SettingKey, raw any) (any, error) {
	r, ok := keyRules[key]
	if !ok {
		return raw, nil
	}
	v, err := ValidateAndConvert(raw, r.valueType)
	if err != nil {
		return nil, err
	}
	if r.check != nil {
		if err := r.check(v); err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
		}
	}
	return v, nil
}

// checkKeyType rejects a declared value type that differs from the one key
// requires.
func checkKeyType(key models.SettingKey, vt models.ValueType) error {
	want, ok := RequiredType(key)
	if ok && vt != want {
		return fmt.Errorf("%w: %s must be stored as %s, got %s", apperr.ErrValidation, key, want, vt)
	}
	return nil
}
