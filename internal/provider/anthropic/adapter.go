// Package anthropic provides an adapter for the Anthropic Messages API. The
// API has no OpenAI-compatible surface, so the adapter speaks the native wire
// format: system messages go into the dedicated system slot, images become
// base64 source blocks, and web search runs as a server-side tool whose
// requests are reported inside usage.
package anthropic

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

const providerName = "anthropic"

// Provider implements the domain.Provider interface for Anthropic.
type Provider struct {
	client *client

	mu         sync.RWMutex
	liveModels []string
}

// NewProvider creates a new Anthropic provider. A missing API key is a
// configuration error; the vendor is then simply never registered.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is not configured")
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

// FetchModels queries the catalog endpoint and caches the chat models. On any
// failure the previous value is returned unchanged.
func (p *Provider) FetchModels(ctx context.Context) []string {
	ids, err := p.client.listModels(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("anthropic model fetch failed, keeping previous list",
			observability.Error(err))
		return p.SupportedModels()
	}

	models := make([]string, 0, len(ids))
	for _, id := range ids {
		if isChatModel(id) {
			models = append(models, id)
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

// HealthCheck sends a minimal one-token message.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req := messagesRequest{
		Model:     FallbackModels()[0],
		MaxTokens: 1,
		Messages:  []wireMessage{{Role: "user", Content: "hi"}},
	}

	resp, err := p.client.postMessages(ctx, req)
	if err != nil {
		return domain.WrapProviderError(providerName, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// StreamCompletion streams a completion. With tools enabled the request
// carries the server-side web search tool; if the vendor rejects that request
// as unsupported the adapter silently retries without tools.
func (p *Provider) StreamCompletion(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	wireReq := p.toWireRequest(req, req.EnableTools)

	resp, err := p.client.postMessages(ctx, wireReq)
	if err != nil && req.EnableTools && isToolUnsupported(err) {
		logger.Info("anthropic web search tool rejected, falling back to plain messages call",
			observability.Error(err))
		resp, err = p.client.postMessages(ctx, p.toWireRequest(req, false))
	}
	if err != nil {
		return nil, domain.WrapProviderError(providerName, err)
	}

	events := make(chan domain.StreamEvent)
	go p.consumeStream(ctx, resp.Body, req.EnableTools, events)
	return events, nil
}

// consumeStream reads Messages SSE events and emits normalized stream events.
// Token counts are spread across the stream (input tokens on message_start,
// output tokens and server tool use on message_delta) and accumulated into a
// single trailing usage event.
func (p *Provider) consumeStream(
	ctx context.Context,
	body io.ReadCloser,
	toolsEnabled bool,
	events chan<- domain.StreamEvent,
) {
	defer close(events)
	defer body.Close()

	scanner := sse.NewScanner(body)

	var usage domain.Usage
	toolBlocks := 0

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

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, err)}
			return
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				usage.PromptTokens = event.Message.Usage.InputTokens
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "server_tool_use" {
				toolBlocks++
			}

		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				events <- domain.StreamEvent{Text: event.Delta.Text}
			}

		case "message_delta":
			if event.Usage != nil {
				usage.CompletionTokens = event.Usage.OutputTokens
				if event.Usage.ServerToolUse != nil {
					usage.WebSearchCalls = event.Usage.ServerToolUse.WebSearchRequests
				}
			}

		case "error":
			msg := "stream error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, errors.New(msg))}
			return
		}
	}

	usage.ToolCalls = toolBlocks
	// The vendor reports per-tool search counts; when only the block count is
	// known and search was the sole enabled tool, attribute it to both fields.
	if usage.WebSearchCalls == 0 && toolsEnabled && toolBlocks > 0 {
		usage.WebSearchCalls = toolBlocks
	}
	if usage.WebSearchCalls > usage.ToolCalls {
		usage.ToolCalls = usage.WebSearchCalls
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	events <- domain.StreamEvent{Usage: &usage}
}

// toWireRequest converts the domain request. System messages fill the native
// system slot; image parts become base64 source blocks.
func (p *Provider) toWireRequest(req *domain.CompletionRequest, withTools bool) messagesRequest {
	var system []string
	messages := make([]wireMessage, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Text())
			continue
		}

		if !msg.IsMultimodal() {
			messages = append(messages, wireMessage{Role: msg.Role, Content: msg.Content})
			continue
		}

		blocks := make([]wireContentBlock, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case domain.PartTypeText:
				blocks = append(blocks, wireContentBlock{Type: "text", Text: part.Text})
			case domain.PartTypeImage:
				if source, ok := imageSourceFromDataURL(part.ImageURL); ok {
					blocks = append(blocks, wireContentBlock{Type: "image", Source: source})
				} else {
					blocks = append(blocks, wireContentBlock{
						Type: "text",
						Text: "[Image: " + part.ImageURL + "]",
					})
				}
			}
		}
		messages = append(messages, wireMessage{Role: msg.Role, Content: blocks})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	wireReq := messagesRequest{
		Model:     req.Model,
		Messages:  messages,
		System:    strings.Join(system, "\n\n"),
		MaxTokens: maxTokens,
		Stream:    true,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		wireReq.Temperature = &temp
	}
	if withTools {
		wireReq.Tools = []map[string]any{{
			"type":     webSearchToolType,
			"name":     "web_search",
			"max_uses": webSearchMaxUses,
		}}
	}
	return wireReq
}

// imageSourceFromDataURL decodes an embedded base64 data URL into a native
// image source block.
func imageSourceFromDataURL(url string) (*wireImageSource, bool) {
	if !strings.HasPrefix(url, "data:") {
		return nil, false
	}
	meta, data, found := strings.Cut(strings.TrimPrefix(url, "data:"), ";base64,")
	if !found || meta == "" || data == "" {
		return nil, false
	}
	return &wireImageSource{
		Type:      "base64",
		MediaType: meta,
		Data:      data,
	}, true
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
