// Package store persists deals, price history, merchants and users.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/dedup"
	"github.com/dealpulse/ingest/internal/model"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// DealWriter is the write side used while ingesting a candidate.
type DealWriter interface {
	// InsertDeal assigns ID and timestamps on d.
	InsertDeal(ctx context.Context, d *model.Deal) error
	UpdateDealPrice(ctx context.Context, dealID string, u model.PriceUpdate) error
	// AppendPriceHistory assigns ID and ScrapedAt when empty.
	AppendPriceHistory(ctx context.Context, e *model.PriceHistoryEntry) error
}

// Tx is the view of the store available inside WithMerchantLock. Reads and
// writes made through it share one transaction.
type Tx interface {
	dedup.Catalog
	DealWriter
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	Tx

	// Deals and scoring inputs
	GetDeal(ctx context.Context, id string) (*model.Deal, error)
	PriceHistory(ctx context.Context, dealID string, limit int) ([]model.PriceHistoryEntry, error)
	MerchantStats(ctx context.Context, merchant string, limit int) (model.MerchantStats, error)
	CandidatePool(ctx context.Context, minDiscount, limit int) ([]model.Deal, error)

	// Merchants
	ListMerchants(ctx context.Context) ([]model.Merchant, error)
	GetMerchant(ctx context.Context, slug string) (*model.Merchant, error)
	UpsertMerchants(ctx context.Context, merchants []model.Merchant) (int64, error)
	RecordMerchantSync(ctx context.Context, slug string, at time.Time, created int) error

	// Users
	EnsureUser(ctx context.Context, email, name string) (*model.User, error)

	// WithMerchantLock runs fn in a transaction that excludes every other
	// WithMerchantLock call for the same merchant.
	WithMerchantLock(ctx context.Context, merchant string, fn func(Tx) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// lockKey is the advisory lock key for a merchant's deal writes.
func lockKey(merchant string) string {
	return "deal:" + strings.ToLower(strings.TrimSpace(merchant))
}
