package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// pricePattern extracts a dollar amount quoted per 1000 calls, tolerating
// "per 1,000", "per 1k" and "/ 1000" phrasings.
var pricePattern = regexp.MustCompile(`(?i)\$\s*([0-9]+(?:\.[0-9]+)?)\s*(?:per|/)\s*1[,.]?0?00|` +
	`(?i)\$\s*([0-9]+(?:\.[0-9]+)?)\s*(?:per|/)\s*1\s*k`)

// vendorPages maps provider names to the public page quoting their web
// search tool pricing.
var vendorPages = map[string]string{
	"openai":  "https://platform.openai.com/docs/pricing",
	"xai":     "https://docs.x.ai/docs/models",
	"google":  "https://ai.google.dev/gemini-api/docs/pricing",
	"mistral": "https://mistral.ai/pricing",
}

// Scraper pulls per-1000-calls web search prices off vendor pricing pages.
// Pages change layout without notice, so every caller must treat a scrape
// failure as routine and fall back to defaults.
type Scraper struct {
	httpClient *http.Client
}

// NewScraper creates a scraper with a short timeout; slow vendor pages must
// not stall a sync pass.
func NewScraper() *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ScrapeWebSearchPrice fetches the provider's pricing page and extracts the
// first per-1000-calls dollar amount found near a web search mention.
func (s *Scraper) ScrapeWebSearchPrice(ctx context.Context, provider string) (decimal.Decimal, error) {
	page, known := vendorPages[provider]
	if !known {
		return decimal.Zero, fmt.Errorf("no pricing page known for provider %s", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create page request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read page body: %w", err)
	}

	return extractSearchPrice(string(body))
}

// extractSearchPrice scans the page text around "search" mentions for a
// per-1000 price.
func extractSearchPrice(body string) (decimal.Decimal, error) {
	lower := strings.ToLower(body)
	idx := strings.Index(lower, "search")
	for idx >= 0 {
		// A price quoted within a window of the mention is assumed related.
		start := idx - 400
		if start < 0 {
			start = 0
		}
		end := idx + 400
		if end > len(body) {
			end = len(body)
		}

		if m := pricePattern.FindStringSubmatch(body[start:end]); m != nil {
			raw := m[1]
			if raw == "" {
				raw = m[2]
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse scraped price %q: %w", raw, err)
			}
			return price.Round(2), nil
		}

		next := strings.Index(lower[idx+1:], "search")
		if next < 0 {
			break
		}
		idx += 1 + next
	}
	return decimal.Zero, fmt.Errorf("no per-1000 search price found on page")
}
