// Package echo provides a testing provider that echoes back input messages.
// It implements the domain.Provider interface without making external API
// calls, giving deterministic streams for development and tests.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo4"
	chunkDelay   = 10 * time.Millisecond
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct{}

// NewProvider creates a new echo provider. No configuration is required as
// this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// SupportedModels returns the single echo model.
func (p *Provider) SupportedModels() []string {
	return []string{modelName}
}

// FetchModels returns the static model list; there is no catalog to query.
func (p *Provider) FetchModels(_ context.Context) []string {
	return p.SupportedModels()
}

// HealthCheck always succeeds.
func (p *Provider) HealthCheck(_ context.Context) error {
	return nil
}

// StreamCompletion echoes the request messages back word by word, then emits
// a deterministic usage event.
func (p *Provider) StreamCompletion(
	ctx context.Context,
	req *domain.CompletionRequest,
) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Model != modelName {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	content := buildEchoContent(req.Messages)
	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)

		words := strings.Fields(content)
		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				events <- domain.StreamEvent{Err: domain.WrapProviderError(providerName, ctx.Err())}
				return
			case events <- domain.StreamEvent{Text: delta}:
				time.Sleep(chunkDelay)
			}
		}

		tokens := len(words)
		select {
		case events <- domain.StreamEvent{Usage: &domain.Usage{
			PromptTokens:     tokens,
			CompletionTokens: tokens,
			TotalTokens:      tokens * 2,
		}}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Text()))
	}
	return builder.String()
}
