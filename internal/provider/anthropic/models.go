package anthropic

import "strings"

// FallbackModels is served until a live catalog fetch succeeds.
func FallbackModels() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-haiku-4-20250414",
	}
}

// isChatModel keeps catalog entries usable for chat completions. Anthropic's
// catalog is already chat-only, so a prefix check is enough.
func isChatModel(id string) bool {
	return strings.HasPrefix(id, "claude-")
}
