package conversation

import (
	"strings"

	"github.com/zulandar/locallm/internal/models"
)

// FormatContext renders history as the prompt context consumed by a text
// backend: an optional "System: " line, then one "User: " or "Assistant: "
// line per message. Lines are joined by a newline with none trailing.
func FormatContext(messages []models.Message, systemPrompt string) string {
	var w strings.Builder
	if systemPrompt != "" {
		writeLine(&w, "System: ", systemPrompt)
	}
	for _, m := range messages {
		writeLine(&w, speaker(m.Role), m.Content)
	}
	return w.String()
}

// FormatPrompt appends the live user prompt to a rendered context and cues
// the assistant's reply.
func FormatPrompt(context, prompt string) string {
	var w strings.Builder
	w.WriteString(context)
	w.WriteString("\nUser: ")
	w.WriteString(prompt)
	w.WriteString("\nAssistant:")
	return w.String()
}

func writeLine(w *strings.Builder, prefix, content string) {
	if w.Len() > 0 {
		w.WriteString("\n")
	}
	w.WriteString(prefix)
	w.WriteString(content)
}

func speaker(r models.Role) string {
	if r == models.RoleUser {
		return "User: "
	}
	return "Assistant: "
}
