package mistral

// FallbackModels is served until a live catalog fetch succeeds.
func FallbackModels() []string {
	return []string{
		"mistral-large-latest",
		"mistral-small-latest",
		"codestral-latest",
	}
}
