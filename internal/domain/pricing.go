package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ModelPricing is one row of the append-only pricing ledger. Rows are never
// updated or deleted; the current rate for a model is the row with the
// greatest EffectiveFrom <= now. All prices are USD per million tokens except
// WebSearchCallPricePerThousand, which is USD per 1000 search calls.
type ModelPricing struct {
	ID        string `json:"id"`
	ModelName string `json:"model_name"`
	Provider  string `json:"provider"`

	InputPricePerMillion  decimal.Decimal `json:"input_price_per_million"`
	OutputPricePerMillion decimal.Decimal `json:"output_price_per_million"`

	ImageInputPricePerMillion  *decimal.Decimal `json:"image_input_price_per_million,omitempty"`
	AudioInputPricePerMillion  *decimal.Decimal `json:"audio_input_price_per_million,omitempty"`
	AudioOutputPricePerMillion *decimal.Decimal `json:"audio_output_price_per_million,omitempty"`
	VideoInputPricePerMillion  *decimal.Decimal `json:"video_input_price_per_million,omitempty"`

	WebSearchCallPricePerThousand *decimal.Decimal `json:"web_search_call_price_per_thousand,omitempty"`

	EffectiveFrom time.Time `json:"effective_from"`
	CreatedAt     time.Time `json:"created_at"`
}

// PricesEqual reports whether every priced field of both rows matches
// exactly, comparing optional fields nil-aware. Identity and timestamp
// columns are ignored.
func (p *ModelPricing) PricesEqual(other *ModelPricing) bool {
	return p.InputPricePerMillion.Equal(other.InputPricePerMillion) &&
		p.OutputPricePerMillion.Equal(other.OutputPricePerMillion) &&
		optionalEqual(p.ImageInputPricePerMillion, other.ImageInputPricePerMillion) &&
		optionalEqual(p.AudioInputPricePerMillion, other.AudioInputPricePerMillion) &&
		optionalEqual(p.AudioOutputPricePerMillion, other.AudioOutputPricePerMillion) &&
		optionalEqual(p.VideoInputPricePerMillion, other.VideoInputPricePerMillion) &&
		optionalEqual(p.WebSearchCallPricePerThousand, other.WebSearchCallPricePerThousand)
}

func optionalEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// PricingRepository is the boundary contract to the ledger store. No core
// logic depends on a specific query language.
type PricingRepository interface {
	// Insert appends rows to the ledger.
	Insert(ctx context.Context, rows ...*ModelPricing) error

	// CurrentPrice returns the row for model with the greatest
	// EffectiveFrom <= asOf, or ErrNoPrice if none exists.
	CurrentPrice(ctx context.Context, modelName string, asOf time.Time) (*ModelPricing, error)

	// LatestPerModel returns the current row for every model as of asOf.
	LatestPerModel(ctx context.Context, asOf time.Time) (map[string]*ModelPricing, error)

	// ListCurrent returns the current row for every model, ordered by
	// provider then model name.
	ListCurrent(ctx context.Context, asOf time.Time) ([]*ModelPricing, error)

	// History returns all rows, newest first, optionally filtered by model.
	History(ctx context.Context, modelName string) ([]*ModelPricing, error)
}

// SyncResult reports the outcome of one pricing synchronization pass.
type SyncResult struct {
	Updated   []string `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// ToMap renders the result in the shape the admin surface reports.
func (r *SyncResult) ToMap() map[string]interface{} {
	updated := r.Updated
	if updated == nil {
		updated = []string{}
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return map[string]interface{}{
		"updated":       updated,
		"updated_count": len(updated),
		"unchanged":     r.Unchanged,
		"skipped":       r.Skipped,
		"errors":        errs,
	}
}
