package xai_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/xai"
)

func TestNewProvider_MissingAPIKey(t *testing.T) {
	provider, err := xai.NewProvider(xai.Config{})

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "API key")
}

func TestProvider_Name(t *testing.T) {
	provider, err := xai.NewProvider(xai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	require.Equal(t, "xai", provider.Name())
}

func TestSupportedModels_Fallback(t *testing.T) {
	provider, err := xai.NewProvider(xai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	models := provider.SupportedModels()
	require.NotEmpty(t, models)
	for _, model := range models {
		require.Contains(t, model, "grok")
	}
}

func TestStreamCompletion_TextAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":"Grok"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":" says hi"},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":6,"completion_tokens":3,"total_tokens":9}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider, err := xai.NewProvider(xai.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:    "grok-3",
		Messages: []domain.Message{domain.TextMessage("user", "hi")},
	})
	require.NoError(t, err)

	var texts []string
	var usage *domain.Usage
	for event := range events {
		require.NoError(t, event.Err)
		if event.Usage != nil {
			require.Nil(t, usage, "usage must arrive at most once")
			usage = event.Usage
			continue
		}
		require.Nil(t, usage, "usage must be the last event")
		texts = append(texts, event.Text)
	}

	require.Equal(t, []string{"Grok", " says hi"}, texts)
	require.NotNil(t, usage)
	require.Equal(t, 6, usage.PromptTokens)
	require.Equal(t, 3, usage.CompletionTokens)
	require.Equal(t, 9, usage.TotalTokens)
}

func TestStreamCompletion_NilRequest(t *testing.T) {
	provider, err := xai.NewProvider(xai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), nil)
	require.Error(t, err)
	require.Nil(t, events)
}
