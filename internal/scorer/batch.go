package scorer

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dealpulse/ingest/internal/metrics"
	"github.com/dealpulse/ingest/internal/model"
)

// RankedDeal pairs a deal with its score.
type RankedDeal struct {
	Deal  model.Deal        `json:"deal"`
	Score model.ScoreResult `json:"score"`
}

// TopQualityDeals scores the candidate pool and returns the best limit
// deals, highest score first. A deal that fails to score gets the neutral
// substitute and the batch continues.
func (e *Engine) TopQualityDeals(ctx context.Context, limit int) ([]RankedDeal, error) {
	pool, err := e.src.CandidatePool(ctx, e.cfg.MinDiscount, e.cfg.CandidatePool)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load candidate pool")
	}

	ranked := make([]RankedDeal, len(pool))
	stats := newStatsCache(e.src, e.cfg.MerchantWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, d := range pool {
		g.Go(func() error {
			ranked[i] = RankedDeal{Deal: d, Score: e.scoreOrNeutral(gctx, d, stats)}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: top quality deals")
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.TotalScore > ranked[j].Score.TotalScore
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (e *Engine) scoreOrNeutral(ctx context.Context, d model.Deal, stats *statsCache) model.ScoreResult {
	history, err := e.src.PriceHistory(ctx, d.ID, e.cfg.HistoryWindow)
	if err == nil {
		var ms model.MerchantStats
		ms, err = stats.get(ctx, d.Merchant)
		if err == nil {
			return e.Score(Input{Deal: d, History: history, Merchant: ms})
		}
	}

	metrics.ScoreFallbacks.Inc()
	zap.L().Warn("scorer: substituting neutral score",
		zap.String("deal_id", d.ID),
		zap.String("merchant", d.Merchant),
		zap.Error(err),
	)
	return e.Neutral(d.ID)
}

// statsCache shares merchant aggregates across one batch.
type statsCache struct {
	src    DataSource
	window int

	mu    sync.Mutex
	byKey map[string]model.MerchantStats
}

func newStatsCache(src DataSource, window int) *statsCache {
	return &statsCache{src: src, window: window, byKey: make(map[string]model.MerchantStats)}
}

func (c *statsCache) get(ctx context.Context, merchant string) (model.MerchantStats, error) {
	c.mu.Lock()
	s, ok := c.byKey[merchant]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	s, err := c.src.MerchantStats(ctx, merchant, c.window)
	if err != nil {
		return model.MerchantStats{}, err
	}
	c.mu.Lock()
	c.byKey[merchant] = s
	c.mu.Unlock()
	return s, nil
}
