package openai_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/openai"
)

func TestNewProvider_MissingAPIKey(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{})

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "API key")
}

func TestProvider_Name(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	require.Equal(t, "openai", provider.Name())
}

func TestSupportedModels_Fallback(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	models := provider.SupportedModels()
	require.NotEmpty(t, models)
	require.Contains(t, models, "gpt-4o")
}

func TestStreamCompletion_ChatPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":"Hello"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":" world"},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider, err := openai.NewProvider(openai.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:    "gpt-4o",
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

	require.Equal(t, []string{"Hello", " world"}, texts)
	require.NotNil(t, usage)
	require.Equal(t, 5, usage.PromptTokens)
	require.Equal(t, 7, usage.CompletionTokens)
	require.Equal(t, 12, usage.TotalTokens)
}

func TestStreamCompletion_ToolPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/responses", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"response.output_item.added","item":{"type":"web_search_call"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"response.output_text.delta","delta":"It is"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"response.output_text.delta","delta":" sunny"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"response.completed","response":{"usage":{"input_tokens":20,"output_tokens":10,"total_tokens":30}}}`+"\n\n")
	}))
	defer server.Close()

	provider, err := openai.NewProvider(openai.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []domain.Message{domain.TextMessage("user", "weather?")},
		EnableTools: true,
	})
	require.NoError(t, err)

	var texts []string
	var usage *domain.Usage
	for event := range events {
		require.NoError(t, event.Err)
		if event.Usage != nil {
			usage = event.Usage
			continue
		}
		texts = append(texts, event.Text)
	}

	require.Equal(t, []string{"It is", " sunny"}, texts)
	require.NotNil(t, usage)
	require.Equal(t, 20, usage.PromptTokens)
	require.Equal(t, 10, usage.CompletionTokens)
	require.Equal(t, 30, usage.TotalTokens)
	require.Equal(t, 1, usage.WebSearchCalls)
	require.Equal(t, 1, usage.ToolCalls)
}

func TestStreamCompletion_ToolFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/responses" {
			http.Error(w, `{"error":{"message":"not found"}}`, http.StatusNotFound)
			return
		}
		require.Equal(t, "/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":"plain"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider, err := openai.NewProvider(openai.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []domain.Message{domain.TextMessage("user", "hi")},
		EnableTools: true,
	})
	require.NoError(t, err)

	var texts []string
	var usage *domain.Usage
	for event := range events {
		require.NoError(t, event.Err)
		if event.Usage != nil {
			usage = event.Usage
			continue
		}
		texts = append(texts, event.Text)
	}

	require.Equal(t, []string{"plain"}, texts)
	require.NotNil(t, usage)
	require.Equal(t, 4, usage.TotalTokens)
}

func TestStreamCompletion_NilRequest(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), nil)
	require.Error(t, err)
	require.Nil(t, events)
}
