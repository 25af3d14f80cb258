// Package openai provides an adapter for the OpenAI API. Plain completions
// and the model catalog go through the official SDK; with tools enabled the
// adapter switches to the Responses API so web search runs server-side, and
// silently falls back to a plain chat call when that surface is unavailable.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/sse"
)

const providerName = "openai"

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	sdk openai.Client
	raw *client

	mu         sync.RWMutex
	liveModels []string
}

// NewProvider creates a new OpenAI provider. A missing API key is a
// configuration error; the vendor is then simply never registered.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.Timeout)*time.Second))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &Provider{
		sdk: openai.NewClient(opts...),
		raw: newClient(cfg),
	}, nil
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
	page, err := p.sdk.Models.List(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("OpenAI model fetch failed, keeping previous list",
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
	if _, err := p.sdk.Models.List(ctx); err != nil {
		return domain.WrapProviderError(providerName, err)
	}
	return nil
}

// StreamCompletion streams a completion. With tools enabled the request goes
// to the Responses API with the web search tool attached; if that surface
// rejects the request the adapter retries as a plain chat completion.
func (p *Provider) StreamCompletion(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.EnableTools {
		resp, err := p.raw.postResponses(ctx, p.toResponsesRequest(req))
		if err == nil {
			events := make(chan domain.StreamEvent)
			go p.consumeResponsesStream(ctx, resp.Body, events)
			return events, nil
		}
		if !isToolUnsupported(err) {
			return nil, domain.WrapProviderError(providerName, err)
		}
		observability.FromContext(ctx).Info("OpenAI responses surface rejected request, falling back to chat",
			observability.Error(err))
	}

	return p.streamChat(ctx, req)
}

// streamChat is the plain path through the SDK's chat completions stream.
// Token usage arrives in a final chunk with no choices, after the last delta.
func (p *Provider) streamChat(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	stream := p.sdk.Chat.Completions.NewStreaming(ctx, p.toChatParams(req))

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

// consumeResponsesStream reads Responses SSE events and emits normalized
// stream events. Web search invocations surface as output items of type
// web_search_call; usage arrives on the terminal response.completed event.
func (p *Provider) consumeResponsesStream(
	ctx context.Context,
	body io.ReadCloser,
	events chan<- domain.StreamEvent,
) {
	defer close(events)
	defer body.Close()

	scanner := sse.NewScanner(body)

	var usage domain.Usage
	searchCalls := 0

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

		var event responsesStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, err)}
			return
		}

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" {
				events <- domain.StreamEvent{Text: event.Delta}
			}

		case "response.output_item.added":
			if event.Item != nil && event.Item.Type == "web_search_call" {
				searchCalls++
			}

		case "response.completed":
			if event.Response != nil && event.Response.Usage != nil {
				usage.PromptTokens = event.Response.Usage.InputTokens
				usage.CompletionTokens = event.Response.Usage.OutputTokens
				usage.TotalTokens = event.Response.Usage.TotalTokens
			}

		case "response.failed", "error":
			msg := "stream error"
			if event.Error != nil && event.Error.Message != "" {
				msg = event.Error.Message
			}
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, errors.New(msg))}
			return
		}
	}

	usage.WebSearchCalls = searchCalls
	usage.ToolCalls = searchCalls
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	events <- domain.StreamEvent{Usage: &usage}
}

// toChatParams converts the domain request for the SDK chat surface. Image
// parts pass through as image URL content parts.
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

// toResponsesRequest converts the domain request for the tool path. System
// messages become instructions; image parts become input_image content.
func (p *Provider) toResponsesRequest(req *domain.CompletionRequest) responsesRequest {
	var instructions []string
	input := make([]wireInputItem, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			instructions = append(instructions, msg.Text())
			continue
		}

		if !msg.IsMultimodal() {
			input = append(input, wireInputItem{Role: msg.Role, Content: msg.Content})
			continue
		}

		parts := make([]wireInputPart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case domain.PartTypeText:
				parts = append(parts, wireInputPart{Type: "input_text", Text: part.Text})
			case domain.PartTypeImage:
				parts = append(parts, wireInputPart{Type: "input_image", ImageURL: part.ImageURL})
			}
		}
		input = append(input, wireInputItem{Role: msg.Role, Content: parts})
	}

	wireReq := responsesRequest{
		Model:           req.Model,
		Input:           input,
		Instructions:    strings.Join(instructions, "\n\n"),
		MaxOutputTokens: req.MaxTokens,
		Stream:          true,
		Tools:           []map[string]any{{"type": webSearchToolType}},
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		wireReq.Temperature = &temp
	}
	return wireReq
}

// isToolUnsupported classifies a pre-stream failure as "the tool path is not
// available here": client-side rejections and explicit vendor complaints
// about the tools block. Anything else is a genuine transient failure.
func isToolUnsupported(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		if se.Code == 400 || se.Code == 404 {
			return true
		}
		lower := strings.ToLower(se.Body)
		return strings.Contains(lower, "tool") && strings.Contains(lower, "support")
	}
	return false
}
