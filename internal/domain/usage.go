package domain

// Media-to-token estimation constants. Attachment metadata (count and
// declared duration) is converted into token equivalents for cost
// apportionment; the estimates grow monotonically with each count.
const (
	TokensPerImage       = 1000
	TokensPerAudioSecond = 25
	TokensPerVideoSecond = 50
)

// Usage tracks normalized token and tool-call consumption for one completion,
// independent of the vendor's native usage shape. Produced at most once per
// stream and never mutated afterwards.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	WebSearchCalls   int `json:"web_search_calls,omitempty"`
	ToolCalls        int `json:"tool_calls,omitempty"`
}

// MediaCounts describes the media attached to a prompt, derived from stored
// attachment metadata (size and declared media kind), not from decoded media.
type MediaCounts struct {
	ImageCount   int     `json:"image_count"`
	AudioSeconds float64 `json:"audio_seconds"`
	VideoSeconds float64 `json:"video_seconds"`
}

// EstimatedImageTokens returns the token equivalent of the attached images.
func (m MediaCounts) EstimatedImageTokens() int {
	return m.ImageCount * TokensPerImage
}

// EstimatedAudioTokens returns the token equivalent of the attached audio.
func (m MediaCounts) EstimatedAudioTokens() int {
	return int(m.AudioSeconds * TokensPerAudioSecond)
}

// EstimatedVideoTokens returns the token equivalent of the attached video.
func (m MediaCounts) EstimatedVideoTokens() int {
	return int(m.VideoSeconds * TokensPerVideoSecond)
}

// TotalMediaTokens returns the combined token equivalent of all media.
func (m MediaCounts) TotalMediaTokens() int {
	return m.EstimatedImageTokens() + m.EstimatedAudioTokens() + m.EstimatedVideoTokens()
}
