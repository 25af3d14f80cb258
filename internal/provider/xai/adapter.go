// Package xai provides an adapter for the xAI (Grok) API. The surface is
// OpenAI-compatible, so the adapter reuses the official OpenAI SDK against
// the xAI base URL. No server-side tool path exists here; tool-enabled
// requests run as plain completions.
package xai

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const providerName = "xai"

// Provider implements the domain.Provider interface for xAI.
type Provider struct {
	client openai.Client

	mu         sync.RWMutex
	liveModels []string
}

// NewProvider creates a new xAI provider. A missing API key is a
// configuration error; the vendor is then simply never registered.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("xAI API key is not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.Timeout)*time.Second))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &Provider{client: openai.NewClient(opts...)}, nil
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

// FetchModels queries the catalog endpoint and caches the chat models. On any
// failure the previous value is returned unchanged.
func (p *Provider) FetchModels(ctx context.Context) []string {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("xAI model fetch failed, keeping previous list",
			observability.Error(err))
		return p.SupportedModels()
	}

	var models []string
	for _, m := range page.Data {
		if isChatModel(m.ID) {
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
	if _, err := p.client.Models.List(ctx); err != nil {
		return domain.WrapProviderError(providerName, err)
	}
	return nil
}

// StreamCompletion streams a plain chat completion. Token usage arrives in a
// final chunk with no choices, after the last delta.
func (p *Provider) StreamCompletion(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.toChatParams(req))

	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)

		var usage *domain.Usage
		for stream.Next() {
			chunk := stream.Current()

			if len(chunk.Choices) > 0 {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					events <- domain.StreamEvent{Text: delta}
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				usage = &domain.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, err)}
			return
		}
		if usage != nil {
			events <- domain.StreamEvent{Usage: usage}
		}
	}()

	return events, nil
}

// toChatParams converts the domain request. Grok vision models accept image
// URL content parts through the same OpenAI-compatible shape.
func (p *Provider) toChatParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch {
		case msg.Role == "system":
			messages = append(messages, openai.SystemMessage(msg.Text()))
		case msg.Role == "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Text()))
		case msg.IsMultimodal():
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				switch part.Type {
				case domain.PartTypeText:
					parts = append(parts, openai.TextContentPart(part.Text))
				case domain.PartTypeImage:
					parts = append(parts, openai.ImageContentPart(
						openai.ChatCompletionContentPartImageImageURLParam{URL: part.ImageURL},
					))
				}
			}
			messages = append(messages, openai.UserMessage(parts))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}
