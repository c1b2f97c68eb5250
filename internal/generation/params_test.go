package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/models"
	"github.com/zulandar/locallm/internal/settings"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams(testGenerationConfig())
	want := Params{Model: "falcon-40b-instruct", MaxLength: 1000, Temperature: 0.7, TopP: 0.9, TopK: 50, RepetitionPenalty: 1.1}
	if p != want {
		t.Errorf("DefaultParams = %+v, want %+v", p, want)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestParams_Validate(t *testing.T) {
	base := DefaultParams(testGenerationConfig())
	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"max_length low", func(p *Params) { p.MaxLength = 9 }, "max_length"},
		{"max_length high", func(p *Params) { p.MaxLength = 5001 }, "max_length"},
		{"temperature negative", func(p *Params) { p.Temperature = -0.1 }, "temperature"},
		{"temperature high", func(p *Params) { p.Temperature = 2.1 }, "temperature"},
		{"top_p zero", func(p *Params) { p.TopP = 0 }, "top_p"},
		{"top_p high", func(p *Params) { p.TopP = 1.5 }, "top_p"},
		{"top_k negative", func(p *Params) { p.TopK = -1 }, "top_k"},
		{"repetition_penalty zero", func(p *Params) { p.RepetitionPenalty = 0 }, "repetition_penalty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			err := p.Validate()
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}

	edge := base
	edge.MaxLength, edge.Temperature, edge.TopP, edge.TopK = 10, 0, 1, 0
	if err := edge.Validate(); err != nil {
		t.Errorf("boundary values rejected: %v", err)
	}
}

// mapLookup serves settings from a map keyed by setting key.
type mapLookup map[models.SettingKey]any

func (m mapLookup) Lookup(_ context.Context, key models.SettingKey, _ *int64) (*settings.View, error) {
	v, ok := m[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err, isErr := v.(error); isErr {
		return nil, err
	}
	return &settings.View{Key: key, Value: v}, nil
}

func TestResolveParams(t *testing.T) {
	base := DefaultParams(testGenerationConfig())
	ctx := context.Background()

	p, err := resolveParams(ctx, mapLookup{
		models.KeyMaxLength:   int64(200),
		models.KeyTopP:        "0.5",
		models.KeyTemperature: 1.2,
	}, nil, base, Overrides{Temperature: floatp(0.1)})
	if err != nil {
		t.Fatalf("resolveParams: %v", err)
	}
	if p.MaxLength != 200 || p.TopP != 0.5 || p.Temperature != 0.1 || p.TopK != 50 {
		t.Errorf("params = %+v", p)
	}

	if _, err := resolveParams(ctx, mapLookup{models.KeyTopK: "lots"}, nil, base, Overrides{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad stored value err = %v", err)
	}

	dbErr := errors.New("connection refused")
	if _, err := resolveParams(ctx, mapLookup{models.KeyTopK: dbErr}, nil, base, Overrides{}); !errors.Is(err, dbErr) {
		t.Errorf("lookup failure err = %v", err)
	}

	p, err = resolveParams(ctx, nil, nil, base, Overrides{TopK: intp(5)})
	if err != nil || p.TopK != 5 {
		t.Errorf("nil lookup = %+v, %v", p, err)
	}
}

func TestParams_Info(t *testing.T) {
	info := DefaultParams(testGenerationConfig()).Info()
	if info["model"] != "falcon-40b-instruct" || info["top_k"] != 50 {
		t.Errorf("info = %v", info)
	}
}
