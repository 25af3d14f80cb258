package xai

import "strings"

// FallbackModels is served until a live catalog fetch succeeds.
func FallbackModels() []string {
	return []string{
		"grok-3",
		"grok-3-mini",
	}
}

// Image generation and vision-only variants cannot serve a chat completion.
var excludedKeywords = []string{
	"image",
	"vision",
}

func isChatModel(id string) bool {
	if !strings.HasPrefix(id, "grok-") {
		return false
	}
	for _, keyword := range excludedKeywords {
		if strings.Contains(id, keyword) {
			return false
		}
	}
	return true
}
