package domain

import "strings"

// Content part types carried inside multimodal messages.
const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

// ContentPart is one block of a multimodal message. Text parts carry Text;
// image parts carry ImageURL, normally a base64 data URL
// (data:image/png;base64,...).
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Message represents a chat message. Plain text messages set Content; messages
// with attachments set Parts instead, and Content is ignored.
type Message struct {
	Role    string        `json:"role"` // user, assistant, system
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// IsMultimodal reports whether the message carries content parts.
func (m Message) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// Text flattens the message into plain text. Image parts degrade to an inline
// placeholder naming the image, for vendors without native image input.
func (m Message) Text() string {
	if !m.IsMultimodal() {
		return m.Content
	}

	segments := make([]string, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch part.Type {
		case PartTypeText:
			segments = append(segments, part.Text)
		case PartTypeImage:
			segments = append(segments, "[Image: "+imageLabel(part.ImageURL)+"]")
		}
	}
	return strings.Join(segments, "\n\n")
}

// imageLabel shortens a data URL down to its mime type so placeholders stay
// readable; non-data URLs pass through unchanged.
func imageLabel(url string) string {
	if !strings.HasPrefix(url, "data:") {
		return url
	}
	mime, _, found := strings.Cut(strings.TrimPrefix(url, "data:"), ";")
	if !found || mime == "" {
		return "attachment"
	}
	return mime
}

// CompletionRequest represents a unified streaming completion request.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	EnableTools bool      `json:"enable_tools,omitempty"`
}

// StreamEvent is one item of a normalized completion stream. The stream
// contract: zero or more text events in vendor emission order, then at most
// one usage event, then the channel closes. A stream with no usage event is
// valid (usage unknown). Err is terminal; nothing follows it.
type StreamEvent struct {
	Text  string
	Usage *Usage
	Err   error
}

// ModelInfo pairs a model name with the provider that serves it.
type ModelInfo struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}
