package model

import (
	"math"
	"time"
)

// VerificationStatus represents the moderation/verification state of a deal.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
	VerificationFlagged  VerificationStatus = "flagged"
)

// PriceSource identifies where a price observation came from.
type PriceSource string

const (
	PriceSourceManual  PriceSource = "manual"
	PriceSourceScraper PriceSource = "scraper"
	PriceSourceAPI     PriceSource = "api"
	PriceSourceInitial PriceSource = "initial"
)

// CandidateDeal is a not-yet-persisted product/price observation produced by
// a merchant scraper. Prices are whole currency units (rupees); the platform
// does not track fractional amounts.
type CandidateDeal struct {
	Title              string  `json:"title"`
	Price              int64   `json:"price"`
	OriginalPrice      *int64  `json:"original_price,omitempty"`
	DiscountPercentage *int    `json:"discount_percentage,omitempty"`
	ProductURL         string  `json:"product_url"`
	ImageURL           *string `json:"image_url,omitempty"`
	Merchant           string  `json:"merchant"`
	Description        *string `json:"description,omitempty"`
	ExternalProductID  *string `json:"external_product_id,omitempty"`
}

// Valid reports whether the candidate carries every required field.
func (c *CandidateDeal) Valid() bool {
	return c.Title != "" && c.Price > 0 && c.ProductURL != "" && c.Merchant != ""
}

// Deal is a persisted deal row.
type Deal struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Price              int64              `json:"price"`
	OriginalPrice      *int64             `json:"original_price,omitempty"`
	DiscountPercentage *int               `json:"discount_percentage,omitempty"`
	ProductURL         string             `json:"product_url"`
	ImageURL           *string            `json:"image_url,omitempty"`
	Merchant           string             `json:"merchant"`
	Description        *string            `json:"description,omitempty"`
	ExternalProductID  *string            `json:"external_product_id,omitempty"`
	AuthorID           string             `json:"author_id"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Verified           bool               `json:"verified"`
	LastVerifiedAt     *time.Time         `json:"last_verified_at,omitempty"`
	URLAccessible      *bool              `json:"url_accessible,omitempty"`
	AutoFlagged        bool               `json:"auto_flagged"`
	Upvotes            int                `json:"upvotes"`
	Downvotes          int                `json:"downvotes"`
	CommentCount       int                `json:"comment_count"`
	ViewCount          int                `json:"view_count"`
	IsExpired          bool               `json:"is_expired"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewDealFromCandidate builds an unsaved Deal from a scraped candidate. The
// discount is re-derived from the price pair when both are known.
func NewDealFromCandidate(c CandidateDeal, authorID string) Deal {
	d := Deal{
		Title:              c.Title,
		ProductURL:         c.ProductURL,
		ImageURL:           c.ImageURL,
		Merchant:           c.Merchant,
		Description:        c.Description,
		ExternalProductID:  c.ExternalProductID,
		AuthorID:           authorID,
		VerificationStatus: VerificationPending,
	}
	d.SetPrice(c.Price, c.OriginalPrice, c.DiscountPercentage)
	return d
}

// SetPrice updates the price fields together so discount never drifts from
// the price pair. fallbackDiscount is only used when originalPrice is unknown.
func (d *Deal) SetPrice(price int64, originalPrice *int64, fallbackDiscount *int) {
	d.Price = price
	d.OriginalPrice = originalPrice
	if originalPrice != nil {
		pct := DiscountPercent(price, *originalPrice)
		d.DiscountPercentage = &pct
		return
	}
	d.DiscountPercentage = fallbackDiscount
}

// Discount returns the discount percentage or 0 when unknown.
func (d *Deal) Discount() int {
	if d.DiscountPercentage == nil {
		return 0
	}
	return *d.DiscountPercentage
}

// Savings returns originalPrice - price, or 0 when there is no saving.
func (d *Deal) Savings() int64 {
	if d.OriginalPrice == nil || *d.OriginalPrice <= d.Price {
		return 0
	}
	return *d.OriginalPrice - d.Price
}

// DiscountPercent computes round((original - price) / original * 100),
// clamped to [0,100].
func DiscountPercent(price, original int64) int {
	if original <= 0 || price >= original {
		return 0
	}
	pct := int(math.Round(float64(original-price) / float64(original) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// PriceUpdate carries the fields changed when a lower-priced duplicate
// replaces an existing deal's price.
type PriceUpdate struct {
	Price              int64  `json:"price"`
	OriginalPrice      *int64 `json:"original_price,omitempty"`
	DiscountPercentage *int   `json:"discount_percentage,omitempty"`
}

// PriceHistoryEntry is one append-only price observation for a deal.
type PriceHistoryEntry struct {
	ID            string      `json:"id"`
	DealID        string      `json:"deal_id"`
	Price         int64       `json:"price"`
	OriginalPrice *int64      `json:"original_price,omitempty"`
	Merchant      string      `json:"merchant"`
	ScrapedAt     time.Time   `json:"scraped_at"`
	Source        PriceSource `json:"source"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v, or nil when v is empty.
func String(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
