// Package scrape extracts candidate deals from merchant listing and product
// pages rendered by a headless browser.
package scrape

import (
	"context"
	"errors"

	"github.com/dealpulse/ingest/internal/model"
)

var (
	// ErrUnsupportedURL is returned when no merchant serves a URL's host.
	ErrUnsupportedURL = errors.New("scrape: unsupported url")
	// ErrNoScraper is returned when a merchant has no scraper implementation.
	ErrNoScraper = errors.New("scrape: no scraper for merchant")
)

// Scraper is the per-merchant contract.
type Scraper interface {
	// Merchant returns the canonical merchant name stamped on candidates.
	Merchant() string
	// ScrapeDailyDeals visits the merchant's listing pages and returns every
	// card that carries a title, a price and a product URL.
	ScrapeDailyDeals(ctx context.Context) ([]model.CandidateDeal, error)
	// ScrapeProductByURL extracts one product page. It returns nil, nil when
	// the page does not look like a product page.
	ScrapeProductByURL(ctx context.Context, url string) (*model.CandidateDeal, error)
}
