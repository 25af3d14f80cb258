package google

import "strings"

// FallbackModels is served until a live catalog fetch succeeds.
func FallbackModels() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-2.0-flash-lite",
		"gemini-2.5-pro-preview-06-05",
	}
}

// Catalog entries that can never serve a chat completion: embedding models,
// image/video generation, TTS and live-audio variants, attributed QA.
var excludedKeywords = []string{
	"embedding",
	"imagen",
	"veo",
	"-tts",
	"-live",
	"aqa",
}

// isChatModel keeps entries that support generateContent and are not a
// special-purpose variant.
func isChatModel(name string, methods []string) bool {
	supportsGenerate := false
	for _, m := range methods {
		if m == "generateContent" {
			supportsGenerate = true
			break
		}
	}
	if !supportsGenerate {
		return false
	}

	lower := strings.ToLower(name)
	for _, keyword := range excludedKeywords {
		if strings.Contains(lower, keyword) {
			return false
		}
	}
	return true
}
