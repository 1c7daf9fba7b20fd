package scorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/metrics"
	"github.com/dealpulse/ingest/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockSource struct {
	deals      map[string]model.Deal
	pool       []model.Deal
	history    map[string][]model.PriceHistoryEntry
	historyErr map[string]error
	stats      map[string]model.MerchantStats
	poolErr    error

	mu         sync.Mutex
	statsCalls int
}

func (m *mockSource) GetDeal(_ context.Context, id string) (*model.Deal, error) {
	d, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *mockSource) PriceHistory(_ context.Context, dealID string, limit int) ([]model.PriceHistoryEntry, error) {
	if err := m.historyErr[dealID]; err != nil {
		return nil, err
	}
	h := m.history[dealID]
	if len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (m *mockSource) MerchantStats(_ context.Context, merchant string, _ int) (model.MerchantStats, error) {
	m.mu.Lock()
	m.statsCalls++
	m.mu.Unlock()
	return m.stats[merchant], nil
}

func (m *mockSource) CandidatePool(_ context.Context, _, limit int) ([]model.Deal, error) {
	if m.poolErr != nil {
		return nil, m.poolErr
	}
	if len(m.pool) > limit {
		return m.pool[:limit], nil
	}
	return m.pool, nil
}

func xm5Deal() model.Deal {
	d := model.Deal{
		ID:                 "deal-xm5",
		Title:              "Sony WH-1000XM5 Wireless Headphones Black",
		ProductURL:         "https://www.amazon.in/dp/B0C8S1ZQ6V",
		ImageURL:           model.String("https://m.media-amazon.com/images/I/xm5.jpg"),
		Merchant:           "Amazon",
		VerificationStatus: model.VerificationVerified,
		Verified:           true,
		CreatedAt:          testNow.Add(-time.Hour),
	}
	d.SetPrice(22000, model.Int64(29990), nil)
	return d
}

func breakdown(v, a, u, s int) model.ScoreBreakdown {
	return model.ScoreBreakdown{ValueProposition: v, Authenticity: a, Urgency: u, SocialProof: s}
}

func newTestEngine(src DataSource, cfg config.QualityConfig) *Engine {
	return New(src, cfg, WithClock(func() time.Time { return testNow }))
}

func TestComposite(t *testing.T) {
	w := DefaultQualityConfig().Weights
	assert.Equal(t, 100, Composite(breakdown(100, 100, 100, 100), w))
	assert.Equal(t, 50, Composite(breakdown(50, 50, 50, 50), w))
	assert.Equal(t, 58, Composite(breakdown(80, 60, 40, 20), w))
	assert.Equal(t, 0, Composite(breakdown(0, 0, 0, 0), w))
}

func TestCalculateScore(t *testing.T) {
	d := xm5Deal()
	src := &mockSource{
		deals:   map[string]model.Deal{d.ID: d},
		history: map[string][]model.PriceHistoryEntry{d.ID: historyOf(22000, 25000, 26000)},
		stats: map[string]model.MerchantStats{
			"Amazon": {Merchant: "Amazon", DealCount: 10, Upvotes: 80, Downvotes: 20, Verified: 5, Expired: 2},
		},
	}

	res, err := newTestEngine(src, DefaultQualityConfig()).CalculateScore(context.Background(), d.ID)
	require.NoError(t, err)

	assert.Equal(t, d.ID, res.DealID)
	assert.Equal(t, model.ScoreBreakdown{ValueProposition: 68, Authenticity: 68, Urgency: 85, SocialProof: 25}, res.Breakdown)
	assert.Equal(t, 65, res.TotalScore)
	assert.Equal(t, []string{BadgeGood, BadgeLowestPrice, BadgeVerified, BadgeJustIn, BadgePriceDropping}, res.Badges)
	assert.Equal(t, "Score 65/100: 27% off, lowest tracked price, saves ₹7990, verified", res.Reasoning)
	assert.False(t, res.Fallback)
}

func TestCalculateScore_NotFound(t *testing.T) {
	src := &mockSource{deals: map[string]model.Deal{}}
	_, err := newTestEngine(src, DefaultQualityConfig()).CalculateScore(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCalculateScore_HistoryError(t *testing.T) {
	d := xm5Deal()
	src := &mockSource{
		deals:      map[string]model.Deal{d.ID: d},
		historyErr: map[string]error{d.ID: errors.New("connection reset")},
	}
	_, err := newTestEngine(src, DefaultQualityConfig()).CalculateScore(context.Background(), d.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price history")
}

func TestScore_Bounds(t *testing.T) {
	e := newTestEngine(&mockSource{}, DefaultQualityConfig())
	past := testNow.Add(-time.Hour)
	soon := testNow.Add(2 * time.Hour)

	inputs := []Input{
		{Deal: model.Deal{}},
		{Deal: model.Deal{Price: 1, DiscountPercentage: model.Int(100), AutoFlagged: true, CreatedAt: testNow.Add(-365 * 24 * time.Hour)}},
		{Deal: model.Deal{Price: 1_000_000, Downvotes: 1000, IsExpired: true, ExpiresAt: &past, CreatedAt: testNow.Add(time.Hour)}},
		{
			Deal: func() model.Deal {
				d := xm5Deal()
				d.SetPrice(10000, model.Int64(100000), nil)
				d.Upvotes, d.CommentCount, d.ViewCount = 5000, 500, 1_000_000
				d.ExpiresAt = &soon
				d.Description = model.String("Industry leading noise cancellation with eight microphones and Auto NC Optimizer")
				return d
			}(),
			History:  historyOf(10000, 40000, 60000, 90000, 100000),
			Merchant: model.MerchantStats{DealCount: 5, Upvotes: 50, Verified: 5},
		},
	}

	for i, in := range inputs {
		res := e.Score(in)
		for name, v := range map[string]int{
			"total":        res.TotalScore,
			"value":        res.Breakdown.ValueProposition,
			"authenticity": res.Breakdown.Authenticity,
			"urgency":      res.Breakdown.Urgency,
			"social":       res.Breakdown.SocialProof,
		} {
			assert.GreaterOrEqual(t, v, 0, "input %d %s", i, name)
			assert.LessOrEqual(t, v, 100, "input %d %s", i, name)
		}
		assert.LessOrEqual(t, len(res.Badges), 5, "input %d", i)
	}

	top := e.Score(inputs[3])
	assert.GreaterOrEqual(t, top.TotalScore, 85)
	assert.Equal(t, BadgeExceptional, top.Badges[0])
}

func TestScore_MaxBadges(t *testing.T) {
	cfg := DefaultQualityConfig()
	cfg.MaxBadges = 2
	e := newTestEngine(&mockSource{}, cfg)

	res := e.Score(Input{Deal: xm5Deal(), History: historyOf(22000, 25000, 26000)})
	assert.Equal(t, []string{BadgeGood, BadgeLowestPrice}, res.Badges)
}

func TestNeutral(t *testing.T) {
	e := newTestEngine(&mockSource{}, DefaultQualityConfig())
	res := e.Neutral("d1")
	assert.Equal(t, 50, res.TotalScore)
	assert.Equal(t, breakdown(50, 50, 50, 50), res.Breakdown)
	assert.Equal(t, "score unavailable", res.Reasoning)
	assert.True(t, res.Fallback)
	assert.Empty(t, res.Badges)
}

func TestTopQualityDeals(t *testing.T) {
	strong := xm5Deal()

	weak := model.Deal{ID: "deal-weak", Merchant: "Flipkart", ProductURL: "https://www.flipkart.com/p/itm1?pid=ACC1", CreatedAt: testNow.Add(-20 * 24 * time.Hour)}
	weak.SetPrice(900, model.Int64(1000), nil)

	broken := model.Deal{ID: "deal-broken", Merchant: "Amazon", CreatedAt: testNow}
	broken.SetPrice(5000, model.Int64(10000), nil)

	src := &mockSource{
		pool: []model.Deal{weak, broken, strong},
		history: map[string][]model.PriceHistoryEntry{
			strong.ID: historyOf(22000, 25000, 26000),
		},
		historyErr: map[string]error{broken.ID: errors.New("row decode failed")},
		stats: map[string]model.MerchantStats{
			"Amazon": {DealCount: 10, Upvotes: 80, Downvotes: 20, Verified: 5, Expired: 2},
		},
	}

	before := testutil.ToFloat64(metrics.ScoreFallbacks)
	ranked, err := newTestEngine(src, DefaultQualityConfig()).TopQualityDeals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, strong.ID, ranked[0].Deal.ID)
	assert.Equal(t, broken.ID, ranked[1].Deal.ID)
	assert.True(t, ranked[1].Score.Fallback)
	assert.Equal(t, 50, ranked[1].Score.TotalScore)
	assert.Equal(t, weak.ID, ranked[2].Deal.ID)
	assert.Less(t, ranked[2].Score.TotalScore, 50)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ScoreFallbacks)-before, 0.001)
	assert.Equal(t, 2, src.statsCalls, "one stats lookup per merchant")
}

func TestTopQualityDeals_LimitAndStableOrder(t *testing.T) {
	var pool []model.Deal
	for i := 0; i < 6; i++ {
		d := model.Deal{ID: fmt.Sprintf("deal-%d", i), Merchant: "Myntra", CreatedAt: testNow.Add(-3 * time.Hour)}
		d.SetPrice(1500, model.Int64(3000), nil)
		pool = append(pool, d)
	}
	src := &mockSource{pool: pool}

	cfg := DefaultQualityConfig()
	cfg.Concurrency = 3
	ranked, err := newTestEngine(src, cfg).TopQualityDeals(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, ranked, 4)
	for i, r := range ranked {
		assert.Equal(t, fmt.Sprintf("deal-%d", i), r.Deal.ID)
	}
}

func TestTopQualityDeals_PoolError(t *testing.T) {
	src := &mockSource{poolErr: errors.New("db down")}
	_, err := newTestEngine(src, DefaultQualityConfig()).TopQualityDeals(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candidate pool")
}

func TestTopQualityDeals_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &mockSource{pool: []model.Deal{xm5Deal()}}
	_, err := newTestEngine(src, DefaultQualityConfig()).TopQualityDeals(ctx, 5)
	require.Error(t, err)
}
