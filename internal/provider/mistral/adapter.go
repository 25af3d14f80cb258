// Package mistral provides an adapter for the Mistral chat API. The surface
// is OpenAI-compatible, spoken directly over HTTP. Image parts degrade to
// text placeholders and no server-side tool path exists; tool-enabled
// requests run as plain completions.
package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/sse"
)

const providerName = "mistral"

// Provider implements the domain.Provider interface for Mistral.
type Provider struct {
	client *client

	mu         sync.RWMutex
	liveModels []string
}

// NewProvider creates a new Mistral provider. A missing API key is a
// configuration error; the vendor is then simply never registered.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("mistral API key is not configured")
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

// FetchModels queries the catalog and caches entries whose capabilities
// include chat completion. On any failure the previous value is returned
// unchanged.
func (p *Provider) FetchModels(ctx context.Context) []string {
	catalog, err := p.client.listModels(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("mistral model fetch failed, keeping previous list",
			observability.Error(err))
		return p.SupportedModels()
	}

	models := make([]string, 0, len(catalog.Data))
	for _, m := range catalog.Data {
		if m.Capabilities.CompletionChat {
			models = append(models, m.ID)
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

// HealthCheck lists models, the cheapest authenticated call the API offers.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.listModels(ctx); err != nil {
		return domain.WrapProviderError(providerName, err)
	}
	return nil
}

// StreamCompletion streams a plain chat completion.
func (p *Provider) StreamCompletion(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	resp, err := p.client.postChat(ctx, p.toWireRequest(req))
	if err != nil {
		return nil, domain.WrapProviderError(providerName, err)
	}

	events := make(chan domain.StreamEvent)
	go p.consumeStream(ctx, resp.Body, events)
	return events, nil
}

// consumeStream reads chat SSE chunks and emits normalized stream events.
// Usage rides on the final chunk and is re-emitted as the trailing event.
func (p *Provider) consumeStream(
	ctx context.Context,
	body io.ReadCloser,
	events chan<- domain.StreamEvent,
) {
	defer close(events)
	defer body.Close()

	scanner := sse.NewScanner(body)

	var usage *domain.Usage
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

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, err)}
			return
		}

		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				events <- domain.StreamEvent{Text: delta}
			}
		}
		if chunk.Usage != nil {
			usage = &domain.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
	}

	if usage != nil {
		events <- domain.StreamEvent{Usage: usage}
	}
}

// toWireRequest converts the domain request. Multimodal messages flatten to
// text with image placeholders.
func (p *Provider) toWireRequest(req *domain.CompletionRequest) chatRequest {
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, wireMessage{Role: msg.Role, Content: msg.Text()})
	}

	wireReq := chatRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		wireReq.Temperature = &temp
	}
	return wireReq
}
