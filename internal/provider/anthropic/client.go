package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	apiVersion       = "2023-06-01"
	messagesEndpoint = "/v1/messages"
	modelsEndpoint   = "/v1/models"

	// Server-side web search tool descriptor, counted into usage as
	// web_search_requests by the API.
	webSearchToolType = "web_search_20250305"
	webSearchMaxUses  = 5
)

// Wire types for the Messages API.

type messagesRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	System      string           `json:"system,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []wireContentBlock
}

type wireContentBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *wireImageSource `json:"source,omitempty"`
}

type wireImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireUsage struct {
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	ServerToolUse *struct {
		WebSearchRequests int `json:"web_search_requests"`
	} `json:"server_tool_use,omitempty"`
}

// streamEvent is the envelope of every Messages SSE payload; Type
// discriminates which optional fields are populated.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage wireUsage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *struct {
		Type string `json:"type"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Usage *wireUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// client is the lazily-shared HTTP transport for one adapter instance.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newClient(cfg Config) *client {
	return &client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)
}

// postMessages sends a Messages request and returns the response with the
// body left open for SSE reading. Non-2xx responses are drained, closed, and
// reported as errors carrying the status code and body.
func (c *client) postMessages(ctx context.Context, req messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+messagesEndpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		_ = resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, Body: string(errBody)}
	}

	return resp, nil
}

// listModels fetches the model catalog.
func (c *client) listModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+modelsEndpoint+"?limit=100",
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &statusError{Code: resp.StatusCode, Body: string(errBody)}
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// statusError is a non-2xx vendor response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}
