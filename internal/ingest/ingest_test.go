package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/dedup"
	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const xm5Title = "Sony WH-1000XM5 Wireless Headphones Black"

func newTestIngester(t *testing.T) (*Ingester, *store.SQLiteStore, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	u, err := st.EnsureUser(context.Background(), "automation@dealpulse.local", "DealPulse Bot")
	require.NoError(t, err)

	return New(st, dedup.NewEngine(st, dedup.DefaultConfig())), st, u.ID
}

func xm5(price int64) model.CandidateDeal {
	return model.CandidateDeal{
		Title:         xm5Title,
		Price:         price,
		OriginalPrice: model.Int64(34990),
		ProductURL:    "https://www.amazon.in/dp/B0C8S1ZQ6V",
		Merchant:      "Amazon",
	}
}

func TestIngest_NewDealGetsInitialHistory(t *testing.T) {
	in, st, author := newTestIngester(t)
	ctx := context.Background()

	res, err := in.Ingest(ctx, xm5(25000), author, model.PriceSourceScraper)
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeNew, res.Outcome)
	require.NotEmpty(t, res.DealID)

	d, err := st.GetDeal(ctx, res.DealID)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), d.Price)
	assert.Equal(t, 29, d.Discount())
	assert.Equal(t, author, d.AuthorID)
	assert.Equal(t, model.VerificationPending, d.VerificationStatus)

	hist, err := st.PriceHistory(ctx, res.DealID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(25000), hist[0].Price)
	assert.Equal(t, model.PriceSourceInitial, hist[0].Source)
}

// A lower-priced duplicate without a URL replaces the stored price and
// appends a matching history row.
func TestIngest_PriceDropReplaces(t *testing.T) {
	in, st, author := newTestIngester(t)
	ctx := context.Background()

	first, err := in.Ingest(ctx, xm5(25000), author, model.PriceSourceScraper)
	require.NoError(t, err)

	drop := xm5(22000)
	drop.ProductURL = ""
	res, err := in.Ingest(ctx, drop, author, model.PriceSourceScraper)
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeReplace, res.Outcome)
	assert.Equal(t, first.DealID, res.DealID)
	assert.True(t, res.Check.IsDuplicate)
	assert.InDelta(t, 100, res.Check.SimilarityScore, 0.01)
	assert.Equal(t, int64(25000), res.Check.MatchedDealPrice)

	d, err := st.GetDeal(ctx, first.DealID)
	require.NoError(t, err)
	assert.Equal(t, int64(22000), d.Price)
	assert.Equal(t, 37, d.Discount())

	hist, err := st.PriceHistory(ctx, first.DealID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(22000), hist[0].Price, "newest history row matches the deal price")
	assert.Equal(t, model.PriceSourceScraper, hist[0].Source)
}

// A card without a strike-through price keeps the stored original price,
// so the saving and discount survive the price drop.
func TestIngest_PriceDropKeepsStoredOriginal(t *testing.T) {
	in, st, author := newTestIngester(t)
	ctx := context.Background()

	first, err := in.Ingest(ctx, xm5(25000), author, model.PriceSourceScraper)
	require.NoError(t, err)

	drop := xm5(22000)
	drop.OriginalPrice = nil
	res, err := in.Ingest(ctx, drop, author, model.PriceSourceScraper)
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeReplace, res.Outcome)
	require.NotNil(t, res.Check.MatchedOriginalPrice)
	assert.Equal(t, int64(34990), *res.Check.MatchedOriginalPrice)

	d, err := st.GetDeal(ctx, first.DealID)
	require.NoError(t, err)
	assert.Equal(t, int64(22000), d.Price)
	require.NotNil(t, d.OriginalPrice)
	assert.Equal(t, int64(34990), *d.OriginalPrice)
	assert.Equal(t, 37, d.Discount())

	hist, err := st.PriceHistory(ctx, first.DealID, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.NotNil(t, hist[0].OriginalPrice)
	assert.Equal(t, int64(34990), *hist[0].OriginalPrice)
}

func TestPriceUpdate(t *testing.T) {
	tests := []struct {
		name         string
		cand         model.CandidateDeal
		stored       *int64
		wantOriginal *int64
		wantDiscount *int
	}{
		{
			name:         "candidate original wins",
			cand:         model.CandidateDeal{Price: 22000, OriginalPrice: model.Int64(30000)},
			stored:       model.Int64(34990),
			wantOriginal: model.Int64(30000),
			wantDiscount: model.Int(27),
		},
		{
			name:         "stored original kept",
			cand:         model.CandidateDeal{Price: 22000, DiscountPercentage: model.Int(5)},
			stored:       model.Int64(34990),
			wantOriginal: model.Int64(34990),
			wantDiscount: model.Int(37),
		},
		{
			name:         "stored original at or below new price dropped",
			cand:         model.CandidateDeal{Price: 22000},
			stored:       model.Int64(22000),
			wantOriginal: nil,
			wantDiscount: nil,
		},
		{
			name:         "nothing stored uses page discount",
			cand:         model.CandidateDeal{Price: 22000, DiscountPercentage: model.Int(12)},
			wantOriginal: nil,
			wantDiscount: model.Int(12),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := priceUpdate(tt.cand, tt.stored)
			assert.Equal(t, tt.cand.Price, u.Price)
			assert.Equal(t, tt.wantOriginal, u.OriginalPrice)
			assert.Equal(t, tt.wantDiscount, u.DiscountPercentage)
		})
	}
}

func TestIngest_SameOrHigherPriceRejected(t *testing.T) {
	in, st, author := newTestIngester(t)
	ctx := context.Background()

	first, err := in.Ingest(ctx, xm5(22000), author, model.PriceSourceScraper)
	require.NoError(t, err)

	for _, price := range []int64{22000, 23500} {
		res, err := in.Ingest(ctx, xm5(price), author, model.PriceSourceScraper)
		require.NoError(t, err)
		assert.Equal(t, dedup.OutcomeReject, res.Outcome)
		assert.Equal(t, first.DealID, res.DealID)
	}

	d, err := st.GetDeal(ctx, first.DealID)
	require.NoError(t, err)
	assert.Equal(t, int64(22000), d.Price)

	hist, err := st.PriceHistory(ctx, first.DealID, 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestIngest_ManualSourceOnReplace(t *testing.T) {
	in, st, author := newTestIngester(t)
	ctx := context.Background()

	first, err := in.Ingest(ctx, xm5(25000), author, model.PriceSourceScraper)
	require.NoError(t, err)
	_, err = in.Ingest(ctx, xm5(21000), "user-42", model.PriceSourceManual)
	require.NoError(t, err)

	hist, err := st.PriceHistory(ctx, first.DealID, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.PriceSourceManual, hist[0].Source)
}

func TestIngest_MerchantIsolation(t *testing.T) {
	in, _, author := newTestIngester(t)
	ctx := context.Background()

	_, err := in.Ingest(ctx, xm5(25000), author, model.PriceSourceScraper)
	require.NoError(t, err)

	other := xm5(26000)
	other.Merchant = "Flipkart"
	other.ProductURL = "https://www.flipkart.com/sony-wh-1000xm5/p/itm123?pid=ACCGFHZ8Z8ZQ"
	res, err := in.Ingest(ctx, other, author, model.PriceSourceScraper)
	require.NoError(t, err)
	assert.Equal(t, dedup.OutcomeNew, res.Outcome)
}

func TestIngest_Invalid(t *testing.T) {
	in, _, author := newTestIngester(t)
	ctx := context.Background()

	_, err := in.Ingest(ctx, model.CandidateDeal{Title: "No price", Merchant: "Amazon"}, author, model.PriceSourceScraper)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing price")

	noURL := xm5(25000)
	noURL.ProductURL = ""
	_, err = in.Ingest(ctx, noURL, author, model.PriceSourceScraper)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no product url")
}

// Re-scraping an unchanged listing creates nothing the second time.
func TestIngestAll_IdempotentRescrape(t *testing.T) {
	in, _, author := newTestIngester(t)
	ctx := context.Background()

	listing := []model.CandidateDeal{
		xm5(22990),
		{
			Title: "boAt Airdopes 141 Bluetooth Earbuds", Price: 999, OriginalPrice: model.Int64(4490),
			ProductURL: "https://www.amazon.in/dp/B09N3ZNHTY", Merchant: "Amazon",
		},
		{Title: "", Price: 10, ProductURL: "https://www.amazon.in/dp/B0BROKEN00", Merchant: "Amazon"},
	}

	first, err := in.IngestAll(ctx, listing, author, model.PriceSourceScraper)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 1, first.Errors)
	assert.Len(t, first.ErrorLog, 1)

	second, err := in.IngestAll(ctx, listing, author, model.PriceSourceScraper)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 3, second.Total())
}

func TestIngestAll_Cancelled(t *testing.T) {
	in, _, author := newTestIngester(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tally, err := in.IngestAll(ctx, []model.CandidateDeal{xm5(22000)}, author, model.PriceSourceScraper)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, tally.Total())
}

// Overlapping submissions of the same product produce exactly one row.
func TestIngest_ConcurrentSingleWinner(t *testing.T) {
	in, st, author := newTestIngester(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	outcomes := make([]dedup.Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := in.Ingest(ctx, xm5(22000), author, model.PriceSourceScraper)
			outcomes[i], errs[i] = res.Outcome, err
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if outcomes[i] == dedup.OutcomeNew {
			created++
		}
	}
	assert.Equal(t, 1, created)

	deals, err := st.FindDealsByMerchant(ctx, "Amazon", 10)
	require.NoError(t, err)
	assert.Len(t, deals, 1)
}

func TestTally(t *testing.T) {
	var tl Tally
	tl.Add(dedup.OutcomeNew)
	tl.Add(dedup.OutcomeReplace)
	tl.Add(dedup.OutcomeReject)
	for i := 0; i < maxErrorLog+5; i++ {
		tl.Fail(errors.New("boom"))
	}
	assert.Equal(t, 1, tl.Created)
	assert.Equal(t, 1, tl.Updated)
	assert.Equal(t, 1, tl.Skipped)
	assert.Equal(t, maxErrorLog+5, tl.Errors)
	assert.Len(t, tl.ErrorLog, maxErrorLog)
}
