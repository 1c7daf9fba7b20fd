package scorer

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/model"
)

// DataSource supplies the rows a score is computed from.
type DataSource interface {
	GetDeal(ctx context.Context, id string) (*model.Deal, error)
	// PriceHistory returns at most limit entries for the deal, newest first.
	PriceHistory(ctx context.Context, dealID string, limit int) ([]model.PriceHistoryEntry, error)
	// MerchantStats aggregates the merchant's most recent limit deals.
	MerchantStats(ctx context.Context, merchant string, limit int) (model.MerchantStats, error)
	// CandidatePool returns non-expired deals with discount >= minDiscount,
	// most recent first.
	CandidatePool(ctx context.Context, minDiscount, limit int) ([]model.Deal, error)
}

// Input is everything a single score depends on.
type Input struct {
	Deal     model.Deal
	History  []model.PriceHistoryEntry
	Merchant model.MerchantStats
}

// Engine scores deals against a DataSource.
type Engine struct {
	src DataSource
	cfg config.QualityConfig
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for freshness and expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. Zero config fields take their defaults.
func New(src DataSource, cfg config.QualityConfig, opts ...Option) *Engine {
	e := &Engine{src: src, cfg: withDefaults(cfg), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() config.QualityConfig { return e.cfg }

// CalculateScore loads the deal, its price history and merchant aggregates
// and returns the composite score. It has no side effects.
func (e *Engine) CalculateScore(ctx context.Context, dealID string) (model.ScoreResult, error) {
	d, err := e.src.GetDeal(ctx, dealID)
	if err != nil {
		return model.ScoreResult{}, eris.Wrapf(err, "scorer: load deal %s", dealID)
	}
	if d == nil {
		return model.ScoreResult{}, eris.Errorf("scorer: deal %s not found", dealID)
	}
	return e.scoreDeal(ctx, *d)
}

func (e *Engine) scoreDeal(ctx context.Context, d model.Deal) (model.ScoreResult, error) {
	history, err := e.src.PriceHistory(ctx, d.ID, e.cfg.HistoryWindow)
	if err != nil {
		return model.ScoreResult{}, eris.Wrapf(err, "scorer: load price history for %s", d.ID)
	}
	stats, err := e.src.MerchantStats(ctx, d.Merchant, e.cfg.MerchantWindow)
	if err != nil {
		return model.ScoreResult{}, eris.Wrapf(err, "scorer: load merchant stats for %s", d.Merchant)
	}
	return e.Score(Input{Deal: d, History: history, Merchant: stats}), nil
}

// Score computes the result for already-loaded inputs.
func (e *Engine) Score(in Input) model.ScoreResult {
	now := e.now()
	d := in.Deal

	b := model.ScoreBreakdown{
		ValueProposition: ValueProposition(d, in.History),
		Authenticity:     Authenticity(d, in.Merchant),
		Urgency:          Urgency(d, in.History, now, e.cfg.TrendWindow),
		SocialProof:      SocialProof(d),
	}
	total := Composite(b, e.cfg.Weights)

	sig := signals{
		deal:       d,
		total:      total,
		breakdown:  b,
		atLow:      len(in.History) >= 2 && historyPositionScore(d.Price, in.History) == 40,
		trust:      merchantTrustScore(in.Merchant),
		age:        now.Sub(d.CreatedAt),
		trend:      trendScore(in.History, e.cfg.TrendWindow),
		expiryLeft: expiryLeft(d, now),
	}

	return model.ScoreResult{
		DealID:     d.ID,
		TotalScore: total,
		Breakdown:  b,
		Badges:     badges(sig, e.cfg.MaxBadges),
		Reasoning:  reasoning(sig),
	}
}

// Neutral is the substitute result used when a deal cannot be scored.
func (e *Engine) Neutral(dealID string) model.ScoreResult {
	n := e.cfg.NeutralScore
	return model.ScoreResult{
		DealID:     dealID,
		TotalScore: n,
		Breakdown: model.ScoreBreakdown{
			ValueProposition: n,
			Authenticity:     n,
			Urgency:          n,
			SocialProof:      n,
		},
		Badges:    []string{},
		Reasoning: "score unavailable",
		Fallback:  true,
	}
}

// Composite blends the sub-scores by weight and clamps to [0,100].
func Composite(b model.ScoreBreakdown, w config.QualityWeights) int {
	v := w.Value*float64(b.ValueProposition) +
		w.Authenticity*float64(b.Authenticity) +
		w.Urgency*float64(b.Urgency) +
		w.Social*float64(b.SocialProof)
	return clamp(math.Round(v))
}

func expiryLeft(d model.Deal, now time.Time) *time.Duration {
	if d.ExpiresAt == nil || d.IsExpired {
		return nil
	}
	left := d.ExpiresAt.Sub(now)
	return &left
}
