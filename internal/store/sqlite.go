package store

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dealpulse/ingest/internal/db"
	"github.com/dealpulse/ingest/internal/model"
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "dealpulse.db"

// sqliteParams are applied to every pooled connection. _txlock=immediate
// takes the write lock at BEGIN, which is what WithMerchantLock relies on.
const sqliteParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)&_time_format=sqlite&_txlock=immediate"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	sqlDeals
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path in WAL mode.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = DefaultSQLitePath
	}
	dsn := dbPath + "?" + sqliteParams
	if strings.Contains(dbPath, "?") {
		dsn = dbPath + "&" + sqliteParams
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{sqlDeals: sqlDeals{q: conn}, db: conn}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate applies pending files from migrations/sqlite, each in its own
// transaction.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure migration table")
	}

	const dir = "migrations/sqlite"
	names, err := db.MigrationFiles(migrationFS, dir)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return eris.Wrap(err, "sqlite: query applied migrations")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return eris.Wrap(err, "sqlite: scan migration row")
		}
		applied[name] = true
	}
	rows.Close()

	for _, name := range names {
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return eris.Wrapf(err, "sqlite: read migration %s", name)
		}
		zap.L().Info("applying migration", zap.String("file", name))
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`, name, time.Now().UTC())
			return err
		})
		if err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", name)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// WithMerchantLock runs fn in an immediate transaction. SQLite allows a
// single writer, so this serialises all merchants, not just the named one.
func (s *SQLiteStore) WithMerchantLock(ctx context.Context, _ string, fn func(Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(sqlDeals{q: tx})
	})
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	d, err := scanDeal(s.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: deal %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get deal %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, dealID string, limit int) ([]model.PriceHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deal_id, price, original_price, merchant, scraped_at, source
		 FROM price_history WHERE deal_id = ? ORDER BY scraped_at DESC, rowid DESC LIMIT ?`,
		dealID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: price history %s", dealID)
	}
	defer rows.Close()

	var out []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.DealID, &e.Price, &e.OriginalPrice, &e.Merchant, &e.ScrapedAt, &e.Source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price history")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate price history")
}

func (s *SQLiteStore) MerchantStats(ctx context.Context, merchant string, limit int) (model.MerchantStats, error) {
	st := model.MerchantStats{Merchant: merchant}
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(sum(upvotes), 0),
		       coalesce(sum(downvotes), 0),
		       coalesce(sum(CASE WHEN verified THEN 1 ELSE 0 END), 0),
		       coalesce(sum(CASE WHEN is_expired THEN 1 ELSE 0 END), 0)
		FROM (
			SELECT upvotes, downvotes, verified, is_expired FROM deals
			WHERE lower(merchant) = lower(?)
			ORDER BY created_at DESC LIMIT ?
		)`,
		merchant, limit,
	).Scan(&st.DealCount, &st.Upvotes, &st.Downvotes, &st.Verified, &st.Expired)
	if err != nil {
		return st, eris.Wrapf(err, "sqlite: merchant stats %s", merchant)
	}
	return st, nil
}

func (s *SQLiteStore) CandidatePool(ctx context.Context, minDiscount, limit int) ([]model.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+dealColumns+` FROM deals
		WHERE NOT is_expired AND (expires_at IS NULL OR expires_at > ?)
		  AND discount_percentage >= ?
		ORDER BY created_at DESC LIMIT ?`,
		time.Now().UTC(), minDiscount, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: candidate pool")
	}
	return collectSQLDeals(rows)
}

func (s *SQLiteStore) ListMerchants(ctx context.Context) ([]model.Merchant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+merchantColumns+` FROM merchants ORDER BY slug`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list merchants")
	}
	defer rows.Close()

	var out []model.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan merchant")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate merchants")
}

func (s *SQLiteStore) GetMerchant(ctx context.Context, slug string) (*model.Merchant, error) {
	m, err := scanMerchant(s.db.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE slug = ?`, normalizeSlug(slug)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: merchant %s", slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get merchant %s", slug)
	}
	return m, nil
}

// UpsertMerchants merges merchant configuration in one transaction. Sync
// metadata is left untouched on existing rows.
func (s *SQLiteStore) UpsertMerchants(ctx context.Context, merchants []model.Merchant) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range merchants {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO merchants (slug, name, is_active, scraping_enabled, scraping_interval_hours)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (slug) DO UPDATE SET
					name = excluded.name,
					is_active = excluded.is_active,
					scraping_enabled = excluded.scraping_enabled,
					scraping_interval_hours = excluded.scraping_interval_hours`,
				normalizeSlug(m.Slug), m.Name, m.IsActive, m.ScrapingEnabled, m.ScrapingIntervalHours,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert merchant %s", m.Slug)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) RecordMerchantSync(ctx context.Context, slug string, at time.Time, created int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE merchants SET last_synced_at = ?, total_scraped = total_scraped + ? WHERE slug = ?`,
		at.UTC(), created, normalizeSlug(slug),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record sync %s", slug)
	}
	return checkRowsAffected(res, "merchant", slug)
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, email, name string) (*model.User, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (email) DO NOTHING`,
		uuid.New().String(), email, name, time.Now().UTC(),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure user %s", email)
	}

	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load user %s", email)
	}
	return &u, nil
}

// sqlQuerier is implemented by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlDeals runs deal queries against either the database or a transaction.
type sqlDeals struct {
	q sqlQuerier
}

func (s sqlDeals) FindDealByURL(ctx context.Context, productURL string) (*model.Deal, error) {
	d, err := scanDeal(s.q.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE product_url = ? ORDER BY created_at DESC LIMIT 1`,
		productURL,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find deal by url")
	}
	return d, nil
}

func (s sqlDeals) FindDealsByMerchant(ctx context.Context, merchant string, limit int) ([]model.Deal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE lower(merchant) = lower(?) ORDER BY created_at DESC LIMIT ?`,
		merchant, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find deals by merchant %s", merchant)
	}
	return collectSQLDeals(rows)
}

func (s sqlDeals) InsertDeal(ctx context.Context, d *model.Deal) error {
	prepareInsert(d)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO deals (`+dealColumns+`) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dealArgs(d)...,
	)
	return eris.Wrap(err, "sqlite: insert deal")
}

func (s sqlDeals) UpdateDealPrice(ctx context.Context, dealID string, u model.PriceUpdate) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE deals SET price = ?, original_price = ?, discount_percentage = ?, updated_at = ? WHERE id = ?`,
		u.Price, u.OriginalPrice, u.DiscountPercentage, time.Now().UTC(), dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update deal price %s", dealID)
	}
	return checkRowsAffected(res, "deal", dealID)
}

func (s sqlDeals) AppendPriceHistory(ctx context.Context, e *model.PriceHistoryEntry) error {
	prepareHistory(e)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO price_history (id, deal_id, price, original_price, merchant, scraped_at, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DealID, e.Price, e.OriginalPrice, e.Merchant, e.ScrapedAt.UTC(), string(e.Source),
	)
	return eris.Wrapf(err, "sqlite: append price history %s", e.DealID)
}

func collectSQLDeals(rows *sql.Rows) ([]model.Deal, error) {
	defer rows.Close()
	var out []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate deals")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}
