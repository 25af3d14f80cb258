package openai

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
	defaultBaseURL    = "https://api.openai.com/v1"
	responsesEndpoint = "/responses"

	webSearchToolType = "web_search"
)

// Wire types for the Responses API, which the official SDK does not make
// convenient to stream with server-side tools enabled.

type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []wireInputItem  `json:"input"`
	Instructions    string           `json:"instructions,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Stream          bool             `json:"stream,omitempty"`
	Tools           []map[string]any `json:"tools,omitempty"`
}

type wireInputItem struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []wireInputPart
}

type wireInputPart struct {
	Type     string `json:"type"` // "input_text" or "input_image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type wireResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// responsesStreamEvent is the envelope of every Responses SSE payload; Type
// discriminates which optional fields are populated.
type responsesStreamEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
	Item  *struct {
		Type string `json:"type"`
	} `json:"item,omitempty"`
	Response *struct {
		Usage *wireResponseUsage `json:"usage,omitempty"`
	} `json:"response,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// client is the raw HTTP transport for the Responses API tool path. The
// chat path goes through the official SDK instead.
type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newClient(cfg Config) *client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// postResponses sends a Responses request and returns the response with the
// body left open for SSE reading. Non-2xx responses are drained, closed, and
// reported as errors carrying the status code and body.
func (c *client) postResponses(ctx context.Context, req responsesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+responsesEndpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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

// statusError is a non-2xx vendor response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}
