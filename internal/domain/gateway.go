package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// GatewayEvent is one item of a gateway completion stream: the provider's
// normalized events plus, on the final usage event, the cost resolved from
// the pricing ledger. Cost stays nil when the ledger has no price for the
// model or when the vendor reported no usage.
type GatewayEvent struct {
	Text  string           `json:"text,omitempty"`
	Usage *Usage           `json:"usage,omitempty"`
	Cost  *decimal.Decimal `json:"cost_usd,omitempty"`
	Err   error            `json:"-"`
}

// GatewayService orchestrates one streaming completion end to end: resolve
// the adapter by model, relay its stream, feed success/failure back to the
// availability tracker, and price the reported usage.
type GatewayService struct {
	resolver ProviderResolver
	recorder AvailabilityRecorder
	cost     *CostEngine
}

// NewGatewayService creates a new gateway service (DI constructor).
func NewGatewayService(
	resolver ProviderResolver,
	recorder AvailabilityRecorder,
	cost *CostEngine,
) *GatewayService {
	return &GatewayService{
		resolver: resolver,
		recorder: recorder,
		cost:     cost,
	}
}

// StreamCompletion routes the request to the adapter serving req.Model and
// relays its stream. Media counts describe the request's attachments and only
// influence cost apportionment.
//
// A stream that ends without error is recorded as an implicit success for the
// provider; a surfaced error is recorded as a failure. Both keep availability
// fresh without a network call.
func (g *GatewayService) StreamCompletion(
	ctx context.Context,
	req *CompletionRequest,
	media MediaCounts,
) (<-chan GatewayEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	provider, err := g.resolver.GetProvider(req.Model)
	if err != nil {
		return nil, err
	}

	events, err := provider.StreamCompletion(ctx, req)
	if err != nil {
		g.recorder.RecordFailure(provider.Name(), err.Error())
		return nil, err
	}

	out := make(chan GatewayEvent)
	go g.relay(ctx, provider.Name(), req.Model, media, events, out)
	return out, nil
}

func (g *GatewayService) relay(
	ctx context.Context,
	providerName string,
	model string,
	media MediaCounts,
	events <-chan StreamEvent,
	out chan<- GatewayEvent,
) {
	defer close(out)

	failed := false
	for event := range events {
		switch {
		case event.Err != nil:
			failed = true
			g.recorder.RecordFailure(providerName, event.Err.Error())
			out <- GatewayEvent{Err: event.Err}
		case event.Usage != nil:
			out <- GatewayEvent{Usage: event.Usage, Cost: g.costOf(ctx, model, *event.Usage, media)}
		default:
			out <- GatewayEvent{Text: event.Text}
		}
	}

	if !failed {
		g.recorder.RecordSuccess(providerName)
	}
}

// costOf prices the usage, tolerating a missing ledger row: an absent price
// yields a nil cost, never zero.
func (g *GatewayService) costOf(ctx context.Context, model string, usage Usage, media MediaCounts) *decimal.Decimal {
	cost, err := g.cost.CostForUsage(ctx, model, usage, media)
	if err != nil {
		return nil
	}
	return cost
}
