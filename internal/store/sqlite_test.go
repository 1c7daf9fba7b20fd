package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testAuthor(t *testing.T, st Store) string {
	t.Helper()
	u, err := st.EnsureUser(context.Background(), "automation@dealpulse.local", "DealPulse Bot")
	require.NoError(t, err)
	return u.ID
}

func newDeal(author, merchant, title, url string, price, original int64, created time.Time) *model.Deal {
	d := model.NewDealFromCandidate(model.CandidateDeal{
		Title:         title,
		Price:         price,
		OriginalPrice: model.Int64(original),
		ProductURL:    url,
		Merchant:      merchant,
	}, author)
	d.CreatedAt = created
	return &d
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_InsertAndGetDeal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)

	expires := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	d := newDeal(author, "Amazon", "Sony WH-1000XM5 Wireless Headphones Black",
		"https://www.amazon.in/dp/B0C8S1ZQ6V", 22990, 34990, time.Time{})
	d.ImageURL = model.String("https://m.media-amazon.com/images/I/xm5.jpg")
	d.ExternalProductID = model.String("B0C8S1ZQ6V")
	d.ExpiresAt = &expires
	d.URLAccessible = model.Bool(true)
	require.NoError(t, st.InsertDeal(ctx, d))
	require.NotEmpty(t, d.ID)

	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, int64(22990), got.Price)
	require.NotNil(t, got.OriginalPrice)
	assert.Equal(t, int64(34990), *got.OriginalPrice)
	assert.Equal(t, 34, got.Discount())
	assert.Equal(t, "B0C8S1ZQ6V", *got.ExternalProductID)
	assert.Equal(t, model.VerificationPending, got.VerificationStatus)
	assert.Nil(t, got.Description)
	assert.Nil(t, got.LastVerifiedAt)
	require.NotNil(t, got.URLAccessible)
	assert.True(t, *got.URLAccessible)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestSQLite_GetDeal_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetDeal(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_FindDealByURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)

	d := newDeal(author, "Flipkart", "Apple iPhone 15 (Black, 128 GB)",
		"https://www.flipkart.com/apple-iphone-15/p/itm6ac6485515ae4?pid=MOBGTAGPTB3VS24W", 65999, 79900, time.Time{})
	require.NoError(t, st.InsertDeal(ctx, d))

	found, err := st.FindDealByURL(ctx, d.ProductURL)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, d.ID, found.ID)

	none, err := st.FindDealByURL(ctx, "https://www.flipkart.com/other/p/itm1?pid=X")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_FindDealsByMerchant(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)
	base := time.Now().Add(-10 * time.Hour)

	for i := 0; i < 4; i++ {
		d := newDeal(author, "Amazon", fmt.Sprintf("Deal %d", i), fmt.Sprintf("https://www.amazon.in/dp/B%09d", i),
			1000, 2000, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, st.InsertDeal(ctx, d))
	}
	other := newDeal(author, "Myntra", "Other", "https://www.myntra.com/123456", 500, 1000, base)
	require.NoError(t, st.InsertDeal(ctx, other))

	deals, err := st.FindDealsByMerchant(ctx, "amazon", 3)
	require.NoError(t, err)
	require.Len(t, deals, 3)
	assert.Equal(t, "Deal 3", deals[0].Title)
	assert.Equal(t, "Deal 1", deals[2].Title)
}

func TestSQLite_UpdateDealPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)

	d := newDeal(author, "Amazon", "Sony WH-1000XM5", "https://www.amazon.in/dp/B0C8S1ZQ6V", 25000, 34990, time.Time{})
	require.NoError(t, st.InsertDeal(ctx, d))

	require.NoError(t, st.UpdateDealPrice(ctx, d.ID, model.PriceUpdate{
		Price:              22000,
		OriginalPrice:      model.Int64(34990),
		DiscountPercentage: model.Int(37),
	}))
	got, err := st.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(22000), got.Price)
	assert.Equal(t, 37, got.Discount())

	err = st.UpdateDealPrice(ctx, "missing", model.PriceUpdate{Price: 1})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_PriceHistory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)

	d := newDeal(author, "Amazon", "Sony WH-1000XM5", "https://www.amazon.in/dp/B0C8S1ZQ6V", 25000, 34990, time.Time{})
	require.NoError(t, st.InsertDeal(ctx, d))

	base := time.Now().Add(-72 * time.Hour)
	for i, p := range []int64{26000, 25000, 24000, 22000} {
		require.NoError(t, st.AppendPriceHistory(ctx, &model.PriceHistoryEntry{
			DealID:    d.ID,
			Price:     p,
			Merchant:  "Amazon",
			ScrapedAt: base.Add(time.Duration(i) * time.Hour),
			Source:    model.PriceSourceScraper,
		}))
	}

	h, err := st.PriceHistory(ctx, d.ID, 3)
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, int64(22000), h[0].Price)
	assert.Equal(t, int64(24000), h[1].Price)
	assert.Equal(t, int64(25000), h[2].Price)
	assert.Equal(t, model.PriceSourceScraper, h[0].Source)
	assert.Nil(t, h[0].OriginalPrice)
}

func TestSQLite_MerchantStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)
	base := time.Now().Add(-48 * time.Hour)

	specs := []struct {
		up, down          int
		verified, expired bool
	}{
		{10, 2, true, false},
		{5, 5, false, true},
		{0, 0, true, false},
		{100, 0, true, true}, // oldest, outside a window of 3
	}
	for i, s := range specs {
		d := newDeal(author, "Amazon", fmt.Sprintf("Deal %d", i), fmt.Sprintf("https://www.amazon.in/dp/S%09d", i),
			1000, 2000, base.Add(-time.Duration(i)*time.Hour))
		d.Upvotes, d.Downvotes, d.Verified, d.IsExpired = s.up, s.down, s.verified, s.expired
		require.NoError(t, st.InsertDeal(ctx, d))
	}

	stats, err := st.MerchantStats(ctx, "AMAZON", 3)
	require.NoError(t, err)
	assert.Equal(t, model.MerchantStats{
		Merchant:  "AMAZON",
		DealCount: 3,
		Upvotes:   15,
		Downvotes: 7,
		Verified:  2,
		Expired:   1,
	}, stats)

	empty, err := st.MerchantStats(ctx, "nobody", 50)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.DealCount)
}

func TestSQLite_CandidatePool(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	fresh := newDeal(author, "Amazon", "Fresh 50%", "https://www.amazon.in/dp/P1", 1000, 2000, now.Add(-time.Hour))
	older := newDeal(author, "Amazon", "Older 40%", "https://www.amazon.in/dp/P2", 600, 1000, now.Add(-5*time.Hour))
	older.ExpiresAt = &future
	shallow := newDeal(author, "Amazon", "Shallow 10%", "https://www.amazon.in/dp/P3", 900, 1000, now)
	lapsed := newDeal(author, "Amazon", "Lapsed", "https://www.amazon.in/dp/P4", 500, 1000, now)
	lapsed.ExpiresAt = &past
	flagged := newDeal(author, "Amazon", "Expired flag", "https://www.amazon.in/dp/P5", 500, 1000, now)
	flagged.IsExpired = true

	for _, d := range []*model.Deal{fresh, older, shallow, lapsed, flagged} {
		require.NoError(t, st.InsertDeal(ctx, d))
	}

	pool, err := st.CandidatePool(ctx, 15, 100)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, fresh.ID, pool[0].ID)
	assert.Equal(t, older.ID, pool[1].ID)
}

func TestSQLite_Merchants(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertMerchants(ctx, []model.Merchant{
		{Slug: "Amazon", Name: "Amazon India", IsActive: true, ScrapingEnabled: true, ScrapingIntervalHours: 6},
		{Slug: "myntra", Name: "Myntra", IsActive: true, ScrapingIntervalHours: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	synced := time.Now().Add(-time.Minute)
	require.NoError(t, st.RecordMerchantSync(ctx, "AMAZON", synced, 7))
	require.NoError(t, st.RecordMerchantSync(ctx, "amazon", synced, 3))

	_, err = st.UpsertMerchants(ctx, []model.Merchant{
		{Slug: "amazon", Name: "Amazon", IsActive: true, ScrapingEnabled: false, ScrapingIntervalHours: 4},
	})
	require.NoError(t, err)

	m, err := st.GetMerchant(ctx, "Amazon")
	require.NoError(t, err)
	assert.Equal(t, "Amazon", m.Name)
	assert.False(t, m.ScrapingEnabled)
	assert.Equal(t, 4, m.ScrapingIntervalHours)
	assert.Equal(t, int64(10), m.TotalScraped)
	require.NotNil(t, m.LastSyncedAt)
	assert.WithinDuration(t, synced, *m.LastSyncedAt, time.Second)

	all, err := st.ListMerchants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "amazon", all[0].Slug)
	assert.Nil(t, all[1].LastSyncedAt)

	_, err = st.GetMerchant(ctx, "ajio")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(st.RecordMerchantSync(ctx, "ajio", synced, 1), ErrNotFound))
}

func TestSQLite_EnsureUser_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.EnsureUser(ctx, "automation@dealpulse.local", "DealPulse Bot")
	require.NoError(t, err)
	b, err := st.EnsureUser(ctx, "automation@dealpulse.local", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "DealPulse Bot", b.Name)
}

func TestSQLite_WithMerchantLock_RollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)

	d := newDeal(author, "Amazon", "Rolled back", "https://www.amazon.in/dp/RB1", 1000, 2000, time.Time{})
	boom := errors.New("boom")
	err := st.WithMerchantLock(ctx, "Amazon", func(tx Tx) error {
		if err := tx.InsertDeal(ctx, d); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	found, err := st.FindDealByURL(ctx, d.ProductURL)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSQLite_WithMerchantLock_SingleWinner(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	author := testAuthor(t, st)
	const url = "https://www.amazon.in/dp/B0C8S1ZQ6V"

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.WithMerchantLock(ctx, "Amazon", func(tx Tx) error {
				existing, err := tx.FindDealByURL(ctx, url)
				if err != nil || existing != nil {
					return err
				}
				return tx.InsertDeal(ctx, newDeal(author, "Amazon", "Sony WH-1000XM5", url, 22000, 34990, time.Time{}))
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	deals, err := st.FindDealsByMerchant(ctx, "Amazon", 10)
	require.NoError(t, err)
	assert.Len(t, deals, 1)
}
