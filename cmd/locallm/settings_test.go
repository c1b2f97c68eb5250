package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/zulandar/locallm/internal/apperr"
)

func TestSettingsCmd_Lifecycle(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "", "settings", "set", "temperature", "0.25", "--type", "float", "--config", cfg)
	if err != nil {
		t.Fatalf("set: %v\n%s", err, out)
	}
	if !strings.Contains(out, "temperature") || !strings.Contains(out, "0.25") {
		t.Errorf("set output: %s", out)
	}

	out, err = run(t, "", "settings", "set", "system_prompt", "Be brief.", "--scope", "chat", "--scope-id", "3", "--config", cfg)
	if err != nil {
		t.Fatalf("set chat: %v", err)
	}

	out, err = run(t, "", "settings", "get", "system_prompt", "--scope", "chat", "--scope-id", "3", "--config", cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, "Be brief.") || !strings.Contains(out, "3") {
		t.Errorf("get output: %s", out)
	}

	out, err = run(t, "", "settings", "list", "--config", cfg)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "KEY") || !strings.Contains(out, "temperature") || strings.Contains(out, "system_prompt") {
		t.Errorf("global list: %s", out)
	}

	if out, err = run(t, "", "settings", "delete", "temperature", "--config", cfg); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, "", "settings", "delete", "temperature", "--config", cfg); err != nil {
		t.Errorf("repeat delete failed: %v", err)
	}
	_, err = run(t, "", "settings", "get", "temperature", "--config", cfg)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
}

func TestSettingsCmd_Validation(t *testing.T) {
	cfg := writeConfig(t)
	tests := [][]string{
		{"settings", "set", "top_k", "many", "--type", "integer"},
		{"settings", "set", "colour", "red"},
		{"settings", "set", "max_length", "abc"},
		{"settings", "set", "max_length", "3"},
		{"settings", "list", "--scope", "planet"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := run(t, "", append(args, "--config", cfg)...)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSettingsCmd_SetUsesKeyType(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "settings", "set", "max_length", "200", "--config", cfg)
	if err != nil {
		t.Fatalf("set: %v\n%s", err, out)
	}
	if !strings.Contains(out, "integer") || !strings.Contains(out, "200") {
		t.Errorf("set output: %s", out)
	}
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{int64(5), "5"},
		{[]any{1.0, "a"}, `[1,"a"]`},
		{map[string]any{"k": true}, `{"k":true}`},
	}
	for _, tt := range tests {
		if got := displayValue(tt.in); got != tt.want {
			t.Errorf("displayValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
