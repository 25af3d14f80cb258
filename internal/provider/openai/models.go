package openai

import "strings"

// FallbackModels is served until a live catalog fetch succeeds.
func FallbackModels() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"o1",
		"o3-mini",
	}
}

// Chat-capable ID prefixes. Everything else in the catalog (embeddings,
// image, audio pipelines) is irrelevant to completions.
var includedPrefixes = []string{"gpt-", "chatgpt-", "o1", "o3", "o4"}

// Specialized variants that share a chat prefix but cannot serve a plain
// streaming completion.
var excludedKeywords = []string{
	"embedding",
	"audio",
	"realtime",
	"tts",
	"whisper",
	"dall-e",
	"image",
	"moderation",
	"transcribe",
	"search",
	"instruct",
}

// isChatModel applies the prefix/keyword rules to one catalog entry.
func isChatModel(id string) bool {
	included := false
	for _, prefix := range includedPrefixes {
		if strings.HasPrefix(id, prefix) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, keyword := range excludedKeywords {
		if strings.Contains(id, keyword) {
			return false
		}
	}
	return true
}
