package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestMessage_Text(t *testing.T) {
	tests := []struct {
		name    string
		message domain.Message
		want    string
	}{
		{
			name:    "plain text",
			message: domain.TextMessage("user", "hello"),
			want:    "hello",
		},
		{
			name: "multimodal with data url image",
			message: domain.Message{
				Role: "user",
				Parts: []domain.ContentPart{
					{Type: domain.PartTypeText, Text: "what is this"},
					{Type: domain.PartTypeImage, ImageURL: "data:image/png;base64,aGVsbG8="},
				},
			},
			want: "what is this\n\n[Image: image/png]",
		},
		{
			name: "multimodal with remote image url",
			message: domain.Message{
				Role: "user",
				Parts: []domain.ContentPart{
					{Type: domain.PartTypeImage, ImageURL: "https://example.com/cat.png"},
				},
			},
			want: "[Image: https://example.com/cat.png]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.message.Text())
		})
	}
}

func TestMessage_IsMultimodal(t *testing.T) {
	require.False(t, domain.TextMessage("user", "hi").IsMultimodal())
	require.True(t, domain.Message{
		Role:  "user",
		Parts: []domain.ContentPart{{Type: domain.PartTypeText, Text: "hi"}},
	}.IsMultimodal())
}
