package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const costDecimalPlaces = 6

var oneMillion = decimal.NewFromInt(1_000_000)

// ComputeCost turns normalized usage into a USD amount using a ledger row.
//
// Vendors count media tokens inside prompt_tokens, so the media estimate is
// subtracted (floored at zero) before the text input rate applies, and each
// media category is re-charged at its own rate. Categories without a
// vendor-specific rate fall back to the text input/output rate.
//
// The result is rounded to 6 decimal places with banker's rounding
// (round half to even), matching the ledger's fixed-point precision.
func ComputeCost(usage Usage, pricing *ModelPricing, media MediaCounts) decimal.Decimal {
	imageTokens := media.EstimatedImageTokens()
	audioTokens := media.EstimatedAudioTokens()
	videoTokens := media.EstimatedVideoTokens()

	textInputTokens := usage.PromptTokens - media.TotalMediaTokens()
	if textInputTokens < 0 {
		textInputTokens = 0
	}

	inputRate := pricing.InputPricePerMillion
	outputRate := pricing.OutputPricePerMillion
	imageRate := rateOrDefault(pricing.ImageInputPricePerMillion, inputRate)
	audioInRate := rateOrDefault(pricing.AudioInputPricePerMillion, inputRate)
	videoRate := rateOrDefault(pricing.VideoInputPricePerMillion, inputRate)

	cost := decimal.NewFromInt(int64(textInputTokens)).Mul(inputRate).
		Add(decimal.NewFromInt(int64(imageTokens)).Mul(imageRate)).
		Add(decimal.NewFromInt(int64(audioTokens)).Mul(audioInRate)).
		Add(decimal.NewFromInt(int64(videoTokens)).Mul(videoRate)).
		Add(decimal.NewFromInt(int64(usage.CompletionTokens)).Mul(outputRate)).
		Div(oneMillion)

	return cost.RoundBank(costDecimalPlaces)
}

func rateOrDefault(rate *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return fallback
	}
	return *rate
}

// CostEngine resolves ledger prices and computes completion costs.
type CostEngine struct {
	repo PricingRepository
	now  func() time.Time
}

// NewCostEngine creates a cost engine backed by the given ledger repository.
func NewCostEngine(repo PricingRepository) *CostEngine {
	return &CostEngine{
		repo: repo,
		now:  time.Now,
	}
}

// CurrentPrice returns the current ledger row for the model, or ErrNoPrice.
func (e *CostEngine) CurrentPrice(ctx context.Context, modelName string) (*ModelPricing, error) {
	pricing, err := e.repo.CurrentPrice(ctx, modelName, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("current price for %s: %w", modelName, err)
	}
	return pricing, nil
}

// CostForUsage computes the cost of one completion. When the ledger holds no
// price for the model, the returned cost is nil and the error wraps
// ErrNoPrice; a missing price is never reported as zero cost.
func (e *CostEngine) CostForUsage(
	ctx context.Context,
	modelName string,
	usage Usage,
	media MediaCounts,
) (*decimal.Decimal, error) {
	pricing, err := e.CurrentPrice(ctx, modelName)
	if err != nil {
		return nil, err
	}

	cost := ComputeCost(usage, pricing, media)
	return &cost, nil
}
