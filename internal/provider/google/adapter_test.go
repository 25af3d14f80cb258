package google_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/provider/google"
)

func TestNewProvider_MissingAPIKey(t *testing.T) {
	provider, err := google.NewProvider(google.Config{})

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "API key")
}

func TestProvider_Name(t *testing.T) {
	provider, err := google.NewProvider(google.Config{APIKey: "test-key"})
	require.NoError(t, err)

	require.Equal(t, "google", provider.Name())
}

func TestSupportedModels_Fallback(t *testing.T) {
	provider, err := google.NewProvider(google.Config{APIKey: "test-key"})
	require.NoError(t, err)

	models := provider.SupportedModels()
	require.NotEmpty(t, models)
	for _, model := range models {
		require.Contains(t, model, "gemini")
	}
}

func TestFetchModels_FiltersNonChatModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{
					"name":                       "models/gemini-2.0-flash",
					"supportedGenerationMethods": []string{"generateContent", "countTokens"},
				},
				{
					"name":                       "models/text-embedding-004",
					"supportedGenerationMethods": []string{"embedContent"},
				},
				{
					"name":                       "models/gemini-2.5-flash-preview-tts",
					"supportedGenerationMethods": []string{"generateContent"},
				},
			},
		})
	}))
	defer server.Close()

	provider, err := google.NewProvider(google.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	models := provider.FetchModels(context.Background())
	require.Equal(t, []string{"gemini-2.0-flash"}, models)
}

func writeGenerateStream(w http.ResponseWriter, withGrounding bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}`+"\n\n")
	if withGrounding {
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":" grounded"}]},"groundingMetadata":{"webSearchQueries":["q1","q2"]}}]}`+"\n\n")
	}
	fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":" world"}]}}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":4,"totalTokenCount":13}}`+"\n\n")
}

func TestStreamCompletion_TextAndUsage(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		require.Equal(t, "sse", r.URL.Query().Get("alt"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeGenerateStream(w, false)
	}))
	defer server.Close()

	provider, err := google.NewProvider(google.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model: "gemini-2.0-flash",
		Messages: []domain.Message{
			domain.TextMessage("system", "be brief"),
			domain.TextMessage("user", "hi"),
			domain.TextMessage("assistant", "hello"),
			domain.TextMessage("user", "again"),
		},
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
	require.Equal(t, 9, usage.PromptTokens)
	require.Equal(t, 4, usage.CompletionTokens)
	require.Equal(t, 13, usage.TotalTokens)

	// System messages fill systemInstruction; assistant turns use "model".
	require.NotNil(t, gotReq["systemInstruction"])
	contents := gotReq["contents"].([]any)
	require.Len(t, contents, 3)
	require.Equal(t, "model", contents[1].(map[string]any)["role"])
}

func TestStreamCompletion_GroundingUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req["tools"])
		writeGenerateStream(w, true)
	}))
	defer server.Close()

	provider, err := google.NewProvider(google.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:       "gemini-2.0-flash",
		Messages:    []domain.Message{domain.TextMessage("user", "search it")},
		EnableTools: true,
	})
	require.NoError(t, err)

	var usage *domain.Usage
	for event := range events {
		require.NoError(t, event.Err)
		if event.Usage != nil {
			usage = event.Usage
		}
	}

	require.NotNil(t, usage)
	require.Equal(t, 2, usage.WebSearchCalls)
	require.Equal(t, 2, usage.ToolCalls)
}

func TestStreamCompletion_ToolFallback(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["tools"] != nil {
			http.Error(w, `{"error":{"message":"google_search tool is not supported"}}`, http.StatusBadRequest)
			return
		}
		writeGenerateStream(w, false)
	}))
	defer server.Close()

	provider, err := google.NewProvider(google.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), &domain.CompletionRequest{
		Model:       "gemini-2.0-flash",
		Messages:    []domain.Message{domain.TextMessage("user", "hi")},
		EnableTools: true,
	})
	require.NoError(t, err)

	var texts []string
	for event := range events {
		require.NoError(t, event.Err)
		if event.Usage == nil {
			texts = append(texts, event.Text)
		}
	}

	require.Equal(t, 2, calls)
	require.Equal(t, []string{"Hello", " world"}, texts)
}

func TestStreamCompletion_NilRequest(t *testing.T) {
	provider, err := google.NewProvider(google.Config{APIKey: "test-key"})
	require.NoError(t, err)

	events, err := provider.StreamCompletion(context.Background(), nil)
	require.Error(t, err)
	require.Nil(t, events)
}
