package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiPrefix = "/v1beta"

// Wire types for the generateContent API.

type generateRequest struct {
	Contents          []wireContent    `json:"contents"`
	SystemInstruction *wireContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	Tools             []map[string]any `json:"tools,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// streamChunk is one SSE payload of a streamGenerateContent response.
type streamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []wirePart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			WebSearchQueries []string `json:"webSearchQueries"`
		} `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type modelCatalog struct {
	Models []struct {
		Name                       string   `json:"name"` // "models/gemini-2.0-flash"
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

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

// streamGenerate sends a streaming generateContent request; the response body
// is left open for SSE reading.
func (c *client) streamGenerate(ctx context.Context, model string, req generateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		c.baseURL, apiPrefix, url.PathEscape(model), url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
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

// getModel fetches a single model's metadata; used as the minimal health call.
func (c *client) getModel(ctx context.Context, model string) error {
	endpoint := fmt.Sprintf("%s%s/models/%s?key=%s",
		c.baseURL, apiPrefix, url.PathEscape(model), url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &statusError{Code: resp.StatusCode, Body: string(errBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// listModels fetches the model catalog.
func (c *client) listModels(ctx context.Context) (*modelCatalog, error) {
	endpoint := fmt.Sprintf("%s%s/models?pageSize=200&key=%s",
		c.baseURL, apiPrefix, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &statusError{Code: resp.StatusCode, Body: string(errBody)}
	}

	var catalog modelCatalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode model catalog: %w", err)
	}
	return &catalog, nil
}

// statusError is a non-2xx vendor response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}
