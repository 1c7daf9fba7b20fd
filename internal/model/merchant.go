package model

import "time"

// Merchant holds the scraping configuration and sync metadata for one store.
type Merchant struct {
	Slug                  string     `json:"slug" yaml:"slug"`
	Name                  string     `json:"name" yaml:"name"`
	IsActive              bool       `json:"is_active" yaml:"active"`
	ScrapingEnabled       bool       `json:"scraping_enabled" yaml:"scraping_enabled"`
	ScrapingIntervalHours int        `json:"scraping_interval_hours" yaml:"scraping_interval_hours"`
	LastSyncedAt          *time.Time `json:"last_synced_at,omitempty" yaml:"-"`
	TotalScraped          int64      `json:"total_scraped" yaml:"-"`
}

// Scrapable reports whether scheduled scraping should run for the merchant.
func (m *Merchant) Scrapable() bool {
	return m.IsActive && m.ScrapingEnabled
}

// MerchantStats aggregates a merchant's recent deals for trust scoring.
type MerchantStats struct {
	Merchant  string `json:"merchant"`
	DealCount int    `json:"deal_count"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	Verified  int    `json:"verified"`
	Expired   int    `json:"expired"`
}

// User is the minimal identity record used as the author of ingested deals.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
