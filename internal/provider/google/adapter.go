// Package google provides an adapter for the Google AI (Gemini)
// generateContent API. System messages become the systemInstruction slot,
// assistant turns map to the "model" role, images are sent as inline base64
// blobs, and web search runs as the google_search grounding tool whose
// queries are counted from grounding metadata.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/sse"
)

const providerName = "google"

// Provider implements the domain.Provider interface for Google AI.
type Provider struct {
	client *client

	mu         sync.RWMutex
	liveModels []string
}

// NewProvider creates a new Google AI provider. A missing API key is a
// configuration error; the vendor is then simply never registered.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google AI API key is not configured")
	}
	return &Provider{client: newClient(cfg)}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// SupportedModels returns the live model list once fetched, else the fallback.
func (p *Provider) SupportedModels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.liveModels != nil {
		models := make([]string, len(p.liveModels))
		copy(models, p.liveModels)
		return models
	}
	return FallbackModels()
}

// FetchModels queries the catalog, keeps generateContent-capable chat models,
// and caches them. On any failure the previous value is returned unchanged.
func (p *Provider) FetchModels(ctx context.Context) []string {
	catalog, err := p.client.listModels(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("google model fetch failed, keeping previous list",
			observability.Error(err))
		return p.SupportedModels()
	}

	models := make([]string, 0, len(catalog.Models))
	for _, m := range catalog.Models {
		name := strings.TrimPrefix(m.Name, "models/")
		if isChatModel(name, m.SupportedGenerationMethods) {
			models = append(models, name)
		}
	}
	if len(models) == 0 {
		return p.SupportedModels()
	}

	p.mu.Lock()
	p.liveModels = models
	p.mu.Unlock()

	return p.SupportedModels()
}

// HealthCheck fetches the metadata of the first fallback model.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if err := p.client.getModel(ctx, FallbackModels()[0]); err != nil {
		return domain.WrapProviderError(providerName, err)
	}
	return nil
}

// StreamCompletion streams a completion. With tools enabled the request
// carries the google_search grounding tool; if the vendor rejects that
// request as unsupported the adapter silently retries without it.
func (p *Provider) StreamCompletion(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)

	resp, err := p.client.streamGenerate(ctx, req.Model, p.toWireRequest(req, req.EnableTools))
	if err != nil && req.EnableTools && isToolUnsupported(err) {
		logger.Info("google search grounding rejected, falling back to plain generate call",
			observability.Error(err))
		resp, err = p.client.streamGenerate(ctx, req.Model, p.toWireRequest(req, false))
	}
	if err != nil {
		return nil, domain.WrapProviderError(providerName, err)
	}

	events := make(chan domain.StreamEvent)
	go p.consumeStream(ctx, resp.Body, events)
	return events, nil
}

// consumeStream reads generateContent SSE chunks. Usage metadata arrives on
// every chunk as a running total; the last observed value wins and is emitted
// once after the text ends.
func (p *Provider) consumeStream(
	ctx context.Context,
	body io.ReadCloser,
	events chan<- domain.StreamEvent,
) {
	defer close(events)
	defer body.Close()

	scanner := sse.NewScanner(body)

	var usage *domain.Usage
	searchQueries := 0

	for {
		if ctx.Err() != nil {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, ctx.Err())}
			return
		}

		payload, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, err)}
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, err)}
			return
		}

		for _, candidate := range chunk.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					events <- domain.StreamEvent{Text: part.Text}
				}
			}
			if candidate.GroundingMetadata != nil {
				searchQueries += len(candidate.GroundingMetadata.WebSearchQueries)
			}
		}

		if chunk.UsageMetadata != nil {
			usage = &domain.Usage{
				PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
				CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
			}
		}
	}

	if usage != nil {
		usage.WebSearchCalls = searchQueries
		usage.ToolCalls = searchQueries
		events <- domain.StreamEvent{Usage: usage}
	}
}

// toWireRequest converts the domain request into generateContent form.
func (p *Provider) toWireRequest(req *domain.CompletionRequest, withTools bool) generateRequest {
	var systemParts []wirePart
	contents := make([]wireContent, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, wirePart{Text: msg.Text()})
			continue
		}

		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}

		var parts []wirePart
		if !msg.IsMultimodal() {
			parts = []wirePart{{Text: msg.Content}}
		} else {
			for _, part := range msg.Parts {
				switch part.Type {
				case domain.PartTypeText:
					parts = append(parts, wirePart{Text: part.Text})
				case domain.PartTypeImage:
					if blob, ok := inlineDataFromDataURL(part.ImageURL); ok {
						parts = append(parts, wirePart{InlineData: blob})
					} else {
						parts = append(parts, wirePart{Text: "[Image: " + part.ImageURL + "]"})
					}
				}
			}
		}
		contents = append(contents, wireContent{Role: role, Parts: parts})
	}

	wireReq := generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		wireReq.GenerationConfig.Temperature = &temp
	}
	if len(systemParts) > 0 {
		wireReq.SystemInstruction = &wireContent{Parts: systemParts}
	}
	if withTools {
		wireReq.Tools = []map[string]any{{"google_search": map[string]any{}}}
	}
	return wireReq
}

// inlineDataFromDataURL decodes an embedded base64 data URL into a native
// inline blob.
func inlineDataFromDataURL(url string) (*wireInlineData, bool) {
	if !strings.HasPrefix(url, "data:") {
		return nil, false
	}
	meta, data, found := strings.Cut(strings.TrimPrefix(url, "data:"), ";base64,")
	if !found || meta == "" || data == "" {
		return nil, false
	}
	return &wireInlineData{MimeType: meta, Data: data}, true
}

// isToolUnsupported classifies a pre-stream failure as "grounding is not
// available for this model".
func isToolUnsupported(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		if se.Code == 400 || se.Code == 404 {
			return true
		}
		lower := strings.ToLower(se.Body)
		return strings.Contains(lower, "tool") || strings.Contains(lower, "search")
	}
	return false
}
