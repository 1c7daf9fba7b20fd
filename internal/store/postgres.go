package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/db"
	"github.com/dealpulse/ingest/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgDeals
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pgDeals: pgDeals{q: pool}, pool: pool, closeFn: closeFn}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationFS, "migrations/postgres"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithMerchantLock serialises writers per merchant with a transaction-scoped
// advisory lock on hashtext('deal:<merchant>').
func (s *PostgresStore) WithMerchantLock(ctx context.Context, merchant string, fn func(Tx) error) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, lockKey(merchant)); err != nil {
			return err
		}
		return fn(pgDeals{q: tx})
	})
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: deal %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get deal %s", id)
	}
	return d, nil
}

func (s *PostgresStore) PriceHistory(ctx context.Context, dealID string, limit int) ([]model.PriceHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, price, original_price, merchant, scraped_at, source
		 FROM price_history WHERE deal_id = $1 ORDER BY scraped_at DESC, id DESC LIMIT $2`,
		dealID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: price history %s", dealID)
	}
	defer rows.Close()

	var out []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.DealID, &e.Price, &e.OriginalPrice, &e.Merchant, &e.ScrapedAt, &e.Source); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price history")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate price history")
}

func (s *PostgresStore) MerchantStats(ctx context.Context, merchant string, limit int) (model.MerchantStats, error) {
	st := model.MerchantStats{Merchant: merchant}
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       coalesce(sum(upvotes), 0),
		       coalesce(sum(downvotes), 0),
		       count(*) FILTER (WHERE verified),
		       count(*) FILTER (WHERE is_expired)
		FROM (
			SELECT upvotes, downvotes, verified, is_expired FROM deals
			WHERE lower(merchant) = lower($1)
			ORDER BY created_at DESC LIMIT $2
		) recent`,
		merchant, limit,
	).Scan(&st.DealCount, &st.Upvotes, &st.Downvotes, &st.Verified, &st.Expired)
	if err != nil {
		return st, eris.Wrapf(err, "postgres: merchant stats %s", merchant)
	}
	return st, nil
}

func (s *PostgresStore) CandidatePool(ctx context.Context, minDiscount, limit int) ([]model.Deal, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE NOT is_expired AND (expires_at IS NULL OR expires_at > $1)
		  AND discount_percentage >= $2
		ORDER BY created_at DESC LIMIT $3`,
		time.Now().UTC(), minDiscount, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: candidate pool")
	}
	return collectDeals(rows)
}

func (s *PostgresStore) ListMerchants(ctx context.Context) ([]model.Merchant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+merchantColumns+` FROM merchants ORDER BY slug`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list merchants")
	}
	defer rows.Close()

	var out []model.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan merchant")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate merchants")
}

func (s *PostgresStore) GetMerchant(ctx context.Context, slug string) (*model.Merchant, error) {
	m, err := scanMerchant(s.pool.QueryRow(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE slug = lower($1)`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: merchant %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get merchant %s", slug)
	}
	return m, nil
}

// UpsertMerchants bulk-merges merchant configuration. Sync metadata is left
// untouched on existing rows.
func (s *PostgresStore) UpsertMerchants(ctx context.Context, merchants []model.Merchant) (int64, error) {
	rows := make([][]any, len(merchants))
	for i, m := range merchants {
		rows[i] = []any{normalizeSlug(m.Slug), m.Name, m.IsActive, m.ScrapingEnabled, m.ScrapingIntervalHours}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "merchants",
		Columns:      []string{"slug", "name", "is_active", "scraping_enabled", "scraping_interval_hours"},
		ConflictKeys: []string{"slug"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert merchants")
}

func (s *PostgresStore) RecordMerchantSync(ctx context.Context, slug string, at time.Time, created int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE merchants SET last_synced_at = $1, total_scraped = total_scraped + $2 WHERE slug = lower($3)`,
		at.UTC(), created, slug,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record sync %s", slug)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: merchant %s", slug)
	}
	return nil
}

func (s *PostgresStore) EnsureUser(ctx context.Context, email, name string) (*model.User, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (email) DO NOTHING`,
		uuid.New().String(), email, name, time.Now().UTC(),
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure user %s", email)
	}

	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load user %s", email)
	}
	return &u, nil
}

// pgDeals runs deal queries against either the pool or a transaction.
type pgDeals struct {
	q db.Querier
}

func (p pgDeals) FindDealByURL(ctx context.Context, productURL string) (*model.Deal, error) {
	d, err := scanDeal(p.q.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE product_url = $1 ORDER BY created_at DESC LIMIT 1`,
		productURL,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find deal by url")
	}
	return d, nil
}

func (p pgDeals) FindDealsByMerchant(ctx context.Context, merchant string, limit int) ([]model.Deal, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE lower(merchant) = lower($1) ORDER BY created_at DESC LIMIT $2`,
		merchant, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find deals by merchant %s", merchant)
	}
	return collectDeals(rows)
}

func (p pgDeals) InsertDeal(ctx context.Context, d *model.Deal) error {
	prepareInsert(d)
	_, err := p.q.Exec(ctx,
		`INSERT INTO deals (`+dealColumns+`) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		dealArgs(d)...,
	)
	return eris.Wrap(err, "postgres: insert deal")
}

func (p pgDeals) UpdateDealPrice(ctx context.Context, dealID string, u model.PriceUpdate) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE deals SET price = $1, original_price = $2, discount_percentage = $3, updated_at = $4 WHERE id = $5`,
		u.Price, u.OriginalPrice, u.DiscountPercentage, time.Now().UTC(), dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update deal price %s", dealID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: deal %s", dealID)
	}
	return nil
}

func (p pgDeals) AppendPriceHistory(ctx context.Context, e *model.PriceHistoryEntry) error {
	prepareHistory(e)
	_, err := p.q.Exec(ctx,
		`INSERT INTO price_history (id, deal_id, price, original_price, merchant, scraped_at, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.DealID, e.Price, e.OriginalPrice, e.Merchant, e.ScrapedAt, string(e.Source),
	)
	return eris.Wrapf(err, "postgres: append price history %s", e.DealID)
}

func collectDeals(rows pgx.Rows) ([]model.Deal, error) {
	defer rows.Close()
	var out []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate deals")
}
