package store

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealpulse/ingest/internal/model"
)

const dealColumns = `id, title, price, original_price, discount_percentage, product_url, image_url,
	merchant, description, external_product_id, author_id, verification_status, verified,
	last_verified_at, url_accessible, auto_flagged, upvotes, downvotes, comment_count, view_count,
	is_expired, expires_at, created_at, updated_at`

const merchantColumns = `slug, name, is_active, scraping_enabled, scraping_interval_hours, last_synced_at, total_scraped`

// scanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDeal(row scanner) (*model.Deal, error) {
	var d model.Deal
	err := row.Scan(
		&d.ID, &d.Title, &d.Price, &d.OriginalPrice, &d.DiscountPercentage, &d.ProductURL, &d.ImageURL,
		&d.Merchant, &d.Description, &d.ExternalProductID, &d.AuthorID, &d.VerificationStatus, &d.Verified,
		&d.LastVerifiedAt, &d.URLAccessible, &d.AutoFlagged, &d.Upvotes, &d.Downvotes, &d.CommentCount, &d.ViewCount,
		&d.IsExpired, &d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dealArgs(d *model.Deal) []any {
	return []any{
		d.ID, d.Title, d.Price, d.OriginalPrice, d.DiscountPercentage, d.ProductURL, d.ImageURL,
		d.Merchant, d.Description, d.ExternalProductID, d.AuthorID, string(d.VerificationStatus), d.Verified,
		d.LastVerifiedAt, d.URLAccessible, d.AutoFlagged, d.Upvotes, d.Downvotes, d.CommentCount, d.ViewCount,
		d.IsExpired, d.ExpiresAt, d.CreatedAt, d.UpdatedAt,
	}
}

func scanMerchant(row scanner) (*model.Merchant, error) {
	var m model.Merchant
	err := row.Scan(&m.Slug, &m.Name, &m.IsActive, &m.ScrapingEnabled, &m.ScrapingIntervalHours, &m.LastSyncedAt, &m.TotalScraped)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func prepareInsert(d *model.Deal) {
	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.VerificationStatus == "" {
		d.VerificationStatus = model.VerificationPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	// SQLite compares timestamps as text, so everything is stored in UTC.
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	d.ExpiresAt = utcPtr(d.ExpiresAt)
	d.LastVerifiedAt = utcPtr(d.LastVerifiedAt)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func prepareHistory(e *model.PriceHistoryEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ScrapedAt.IsZero() {
		e.ScrapedAt = time.Now()
	}
	e.ScrapedAt = e.ScrapedAt.UTC()
}

func normalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
