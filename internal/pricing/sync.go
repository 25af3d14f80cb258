package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// DefaultFeedURL is the community price feed covering every major vendor.
const DefaultFeedURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// providerMap translates feed provider labels to gateway provider names.
// Feed entries from unmapped providers are skipped.
var providerMap = map[string]string{
	"openai":    "openai",
	"anthropic": "anthropic",
	"vertex_ai": "google",
	"gemini":    "google",
	"xai":       "xai",
	"mistral":   "mistral",
}

// webSearchDefaults is the per-1000-calls backfill rate used when a vendor
// page cannot be scraped. Vendors absent here have no known search pricing.
var webSearchDefaults = map[string]string{
	"openai":  "10.00",
	"xai":     "5.00",
	"google":  "35.00",
	"mistral": "10.00",
}

var oneMillion = decimal.NewFromInt(1_000_000)

// errMissingTokenCosts marks feed entries without both token rates (free and
// placeholder models). They are skipped quietly rather than reported.
var errMissingTokenCosts = errors.New("missing token costs")

// feedEntry is one model record of the feed. Costs are USD per single token
// (or per single search query) and arrive as raw numbers; json.Number keeps
// them exact until the decimal conversion.
type feedEntry struct {
	Provider string `json:"litellm_provider"`
	Mode     string `json:"mode"`

	InputCostPerToken       json.Number `json:"input_cost_per_token"`
	OutputCostPerToken      json.Number `json:"output_cost_per_token"`
	InputCostPerImageToken  json.Number `json:"input_cost_per_image_token"`
	InputCostPerAudioToken  json.Number `json:"input_cost_per_audio_token"`
	OutputCostPerAudioToken json.Number `json:"output_cost_per_audio_token"`
	InputCostPerVideoToken  json.Number `json:"input_cost_per_video_token"`

	SearchContextCostPerQuery *struct {
		Low    json.Number `json:"search_context_size_low"`
		Medium json.Number `json:"search_context_size_medium"`
		High   json.Number `json:"search_context_size_high"`
	} `json:"search_context_cost_per_query"`
}

// FeedCache caches the raw feed body between sync passes. Implementations
// must degrade silently: a cache failure never fails a sync.
type FeedCache interface {
	Get(ctx context.Context) ([]byte, bool)
	Set(ctx context.Context, body []byte)
}

// WebSearchScraper resolves a vendor's current per-1000-calls search price
// from its public pricing page.
type WebSearchScraper interface {
	ScrapeWebSearchPrice(ctx context.Context, provider string) (decimal.Decimal, error)
}

// Synchronizer keeps the ledger aligned with the external feed. Sync never
// mutates existing rows; a changed rate appends a new row effective now.
type Synchronizer struct {
	repo       domain.PricingRepository
	feedURL    string
	httpClient *http.Client
	cache      FeedCache
	scraper    WebSearchScraper
	now        func() time.Time
}

// SyncOption customizes a Synchronizer.
type SyncOption func(*Synchronizer)

// WithFeedURL overrides the feed endpoint.
func WithFeedURL(url string) SyncOption {
	return func(s *Synchronizer) { s.feedURL = url }
}

// WithFeedCache attaches a feed body cache.
func WithFeedCache(cache FeedCache) SyncOption {
	return func(s *Synchronizer) { s.cache = cache }
}

// WithScraper attaches a vendor page scraper for web search backfill.
func WithScraper(scraper WebSearchScraper) SyncOption {
	return func(s *Synchronizer) { s.scraper = scraper }
}

// NewSynchronizer creates a synchronizer over the given repository.
func NewSynchronizer(repo domain.PricingRepository, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		repo:       repo,
		feedURL:    DefaultFeedURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync fetches the feed, compares every mapped chat model against the
// ledger's current rates, and appends rows for the ones that changed.
func (s *Synchronizer) Sync(ctx context.Context) (*domain.SyncResult, error) {
	logger := observability.FromContext(ctx)

	body, err := s.fetchFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing feed: %w", err)
	}

	var feed map[string]feedEntry
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse pricing feed: %w", err)
	}

	asOf := s.now().UTC()
	latest, err := s.repo.LatestPerModel(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("load current prices: %w", err)
	}

	result := &domain.SyncResult{}
	var inserts []*domain.ModelPricing

	// Deterministic pass order keeps logs and results stable.
	names := make([]string, 0, len(feed))
	for name := range feed {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := feed[name]

		provider, mapped := providerMap[entry.Provider]
		if !mapped || (entry.Mode != "chat" && entry.Mode != "completion") {
			result.Skipped++
			continue
		}

		candidate, err := entryToPricing(name, provider, entry, asOf)
		if err != nil {
			if !errors.Is(err, errMissingTokenCosts) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			}
			result.Skipped++
			continue
		}

		current, known := latest[candidate.ModelName]
		if known {
			// The feed does not carry web search pricing for every entry;
			// never let a sync erase a rate the ledger already has.
			if candidate.WebSearchCallPricePerThousand == nil {
				candidate.WebSearchCallPricePerThousand = current.WebSearchCallPricePerThousand
			}
			if candidate.PricesEqual(current) {
				result.Unchanged++
				continue
			}
		}

		inserts = append(inserts, candidate)
		result.Updated = append(result.Updated, candidate.ModelName)
	}

	if len(inserts) > 0 {
		if err := s.repo.Insert(ctx, inserts...); err != nil {
			return nil, fmt.Errorf("append pricing rows: %w", err)
		}
	}

	logger.Info("pricing sync completed",
		observability.Int("updated", len(result.Updated)),
		observability.Int("unchanged", result.Unchanged),
		observability.Int("skipped", result.Skipped),
		observability.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// BackfillWebSearchPricing appends search rates for current models that lack
// one. The vendor page scrape is tried once per provider; on failure the
// hardcoded default applies. Existing rows are never modified.
func (s *Synchronizer) BackfillWebSearchPricing(ctx context.Context) (*domain.SyncResult, error) {
	logger := observability.FromContext(ctx)

	asOf := s.now().UTC()
	current, err := s.repo.ListCurrent(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("load current prices: %w", err)
	}

	result := &domain.SyncResult{}
	scraped := make(map[string]*decimal.Decimal)
	var inserts []*domain.ModelPricing

	for _, row := range current {
		if row.WebSearchCallPricePerThousand != nil {
			result.Unchanged++
			continue
		}

		fallback, known := webSearchDefaults[row.Provider]
		if !known {
			result.Skipped++
			continue
		}

		price, cached := scraped[row.Provider]
		if !cached {
			price = s.resolveSearchPrice(ctx, row.Provider, fallback)
			scraped[row.Provider] = price
		}

		next := *row
		next.ID = ""
		next.WebSearchCallPricePerThousand = price
		next.EffectiveFrom = asOf
		next.CreatedAt = asOf
		inserts = append(inserts, &next)
		result.Updated = append(result.Updated, next.ModelName)
	}

	if len(inserts) > 0 {
		if err := s.repo.Insert(ctx, inserts...); err != nil {
			return nil, fmt.Errorf("append pricing rows: %w", err)
		}
	}

	logger.Info("web search pricing backfill completed",
		observability.Int("updated", len(result.Updated)),
		observability.Int("unchanged", result.Unchanged),
		observability.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Synchronizer) resolveSearchPrice(ctx context.Context, provider, fallback string) *decimal.Decimal {
	if s.scraper != nil {
		price, err := s.scraper.ScrapeWebSearchPrice(ctx, provider)
		if err == nil {
			return &price
		}
		observability.FromContext(ctx).Warn("vendor page scrape failed, using default search price",
			observability.String("provider", provider),
			observability.Error(err))
	}
	price := decimal.RequireFromString(fallback)
	return &price
}

func (s *Synchronizer) fetchFeed(ctx context.Context) ([]byte, error) {
	if s.cache != nil {
		if body, ok := s.cache.Get(ctx); ok {
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, body)
	}
	return body, nil
}

// entryToPricing converts one feed entry into a ledger row. Per-token rates
// scale to per-million at 6 decimal places; per-query search rates scale to
// per-thousand at 2.
func entryToPricing(name, provider string, entry feedEntry, asOf time.Time) (*domain.ModelPricing, error) {
	input, err := perMillion(entry.InputCostPerToken)
	if err != nil {
		return nil, fmt.Errorf("input cost: %w", err)
	}
	output, err := perMillion(entry.OutputCostPerToken)
	if err != nil {
		return nil, fmt.Errorf("output cost: %w", err)
	}
	if input == nil || output == nil {
		return nil, errMissingTokenCosts
	}

	pricing := &domain.ModelPricing{
		ModelName:             stripVendorPrefix(name),
		Provider:              provider,
		InputPricePerMillion:  *input,
		OutputPricePerMillion: *output,
		EffectiveFrom:         asOf,
		CreatedAt:             asOf,
	}

	if pricing.ImageInputPricePerMillion, err = perMillion(entry.InputCostPerImageToken); err != nil {
		return nil, fmt.Errorf("image input cost: %w", err)
	}
	if pricing.AudioInputPricePerMillion, err = perMillion(entry.InputCostPerAudioToken); err != nil {
		return nil, fmt.Errorf("audio input cost: %w", err)
	}
	if pricing.AudioOutputPricePerMillion, err = perMillion(entry.OutputCostPerAudioToken); err != nil {
		return nil, fmt.Errorf("audio output cost: %w", err)
	}
	if pricing.VideoInputPricePerMillion, err = perMillion(entry.InputCostPerVideoToken); err != nil {
		return nil, fmt.Errorf("video input cost: %w", err)
	}

	if entry.SearchContextCostPerQuery != nil {
		// Medium is the representative tier; low and high are fallbacks.
		for _, tier := range []json.Number{
			entry.SearchContextCostPerQuery.Medium,
			entry.SearchContextCostPerQuery.Low,
			entry.SearchContextCostPerQuery.High,
		} {
			price, err := perThousand(tier)
			if err != nil {
				return nil, fmt.Errorf("search cost: %w", err)
			}
			if price != nil {
				pricing.WebSearchCallPricePerThousand = price
				break
			}
		}
	}

	return pricing, nil
}

// A zero feed cost means the rate is absent (free and placeholder entries),
// not that the model bills at zero.
func perMillion(n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, nil
	}
	scaled := d.Mul(oneMillion).Round(6)
	return &scaled, nil
}

func perThousand(n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, nil
	}
	scaled := d.Mul(decimal.NewFromInt(1000)).Round(2)
	return &scaled, nil
}

// stripVendorPrefix removes a leading "vendor/" qualifier from feed model
// names, so entries like "xai/grok-3" match gateway model names.
func stripVendorPrefix(name string) string {
	if _, rest, found := strings.Cut(name, "/"); found {
		return rest
	}
	return name
}
