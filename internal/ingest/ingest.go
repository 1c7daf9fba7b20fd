// Package ingest runs scraped candidates through duplicate detection and
// persists the accepted outcome.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/dedup"
	"github.com/dealpulse/ingest/internal/metrics"
	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/store"
)

// maxErrorLog bounds the per-run error messages kept on a Tally.
const maxErrorLog = 20

// Locker is the slice of the store the ingester needs.
type Locker interface {
	WithMerchantLock(ctx context.Context, merchant string, fn func(store.Tx) error) error
}

// Result describes what happened to one candidate.
type Result struct {
	Outcome dedup.Outcome `json:"outcome"`
	DealID  string        `json:"deal_id,omitempty"`
	Check   dedup.Result  `json:"check"`
}

// Tally counts candidate outcomes for one run.
type Tally struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	ErrorLog []string `json:"error_log,omitempty"`
}

// Add records a successful outcome.
func (t *Tally) Add(o dedup.Outcome) {
	switch o {
	case dedup.OutcomeNew:
		t.Created++
	case dedup.OutcomeReplace:
		t.Updated++
	default:
		t.Skipped++
	}
}

// Fail records a failed candidate.
func (t *Tally) Fail(err error) {
	t.Errors++
	if len(t.ErrorLog) < maxErrorLog {
		t.ErrorLog = append(t.ErrorLog, err.Error())
	}
}

// Total is the number of candidates seen.
func (t Tally) Total() int {
	return t.Created + t.Updated + t.Skipped + t.Errors
}

// Ingester decides and writes candidates one merchant lock at a time.
type Ingester struct {
	locker Locker
	dedup  *dedup.Engine
	now    func() time.Time
}

// New creates an Ingester. engine supplies the dedup configuration; its
// catalog is swapped for the locked transaction on every call.
func New(locker Locker, engine *dedup.Engine) *Ingester {
	return &Ingester{locker: locker, dedup: engine, now: time.Now}
}

// Ingest checks c against the catalog and applies the price policy inside
// the merchant's lock. source is recorded on the history row of a price
// replacement; new deals always start with an initial history row.
func (in *Ingester) Ingest(ctx context.Context, c model.CandidateDeal, authorID string, source model.PriceSource) (Result, error) {
	if err := validate(c); err != nil {
		return Result{}, err
	}

	var res Result
	err := in.locker.WithMerchantLock(ctx, c.Merchant, func(tx store.Tx) error {
		check, err := in.dedup.WithCatalog(tx).Check(ctx, c)
		if err != nil {
			return err
		}
		res = Result{Outcome: dedup.Decide(check, c.Price), Check: check}

		switch res.Outcome {
		case dedup.OutcomeNew:
			if c.ProductURL == "" {
				return eris.Errorf("ingest: candidate %q has no product url", c.Title)
			}
			d := model.NewDealFromCandidate(c, authorID)
			if err := tx.InsertDeal(ctx, &d); err != nil {
				return err
			}
			res.DealID = d.ID
			return tx.AppendPriceHistory(ctx, &model.PriceHistoryEntry{
				DealID:        d.ID,
				Price:         d.Price,
				OriginalPrice: d.OriginalPrice,
				Merchant:      d.Merchant,
				ScrapedAt:     in.now(),
				Source:        model.PriceSourceInitial,
			})

		case dedup.OutcomeReplace:
			res.DealID = check.MatchedDealID
			u := priceUpdate(c, check.MatchedOriginalPrice)
			if err := tx.UpdateDealPrice(ctx, check.MatchedDealID, u); err != nil {
				return err
			}
			return tx.AppendPriceHistory(ctx, &model.PriceHistoryEntry{
				DealID:        check.MatchedDealID,
				Price:         u.Price,
				OriginalPrice: u.OriginalPrice,
				Merchant:      c.Merchant,
				ScrapedAt:     in.now(),
				Source:        source,
			})

		default:
			res.DealID = check.MatchedDealID
			return nil
		}
	})
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: %s candidate %q", c.Merchant, c.Title)
	}

	metrics.IngestOutcomes.WithLabelValues(strings.ToLower(c.Merchant), string(res.Outcome)).Inc()
	zap.L().Debug("ingest: candidate decided",
		zap.String("merchant", c.Merchant),
		zap.String("title", c.Title),
		zap.String("outcome", string(res.Outcome)),
		zap.String("deal_id", res.DealID),
		zap.Float64("similarity", res.Check.SimilarityScore),
	)
	return res, nil
}

// IngestAll ingests candidates in order. A failing candidate is counted and
// logged; the rest still run. Only context cancellation stops the loop.
func (in *Ingester) IngestAll(ctx context.Context, cands []model.CandidateDeal, authorID string, source model.PriceSource) (Tally, error) {
	var t Tally
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return t, eris.Wrap(err, "ingest: cancelled")
		}
		res, err := in.Ingest(ctx, c, authorID, source)
		if err != nil {
			metrics.IngestOutcomes.WithLabelValues(strings.ToLower(c.Merchant), "error").Inc()
			zap.L().Warn("ingest: candidate failed",
				zap.String("merchant", c.Merchant),
				zap.String("url", c.ProductURL),
				zap.Error(err),
			)
			t.Fail(err)
			continue
		}
		t.Add(res.Outcome)
	}
	return t, nil
}

func validate(c model.CandidateDeal) error {
	var missing []string
	if strings.TrimSpace(c.Title) == "" {
		missing = append(missing, "title")
	}
	if c.Price <= 0 {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(c.Merchant) == "" {
		missing = append(missing, "merchant")
	}
	if len(missing) > 0 {
		return eris.Errorf("ingest: invalid candidate %q: missing %s", c.Title, strings.Join(missing, ", "))
	}
	return nil
}

// priceUpdate derives the stored price fields from c the same way a new
// deal would, so discount always matches the price pair. A candidate
// without an original price keeps the stored one while it is still above
// the new price.
func priceUpdate(c model.CandidateDeal, storedOriginal *int64) model.PriceUpdate {
	original := c.OriginalPrice
	if original == nil && storedOriginal != nil && *storedOriginal > c.Price {
		original = model.Int64(*storedOriginal)
	}
	var d model.Deal
	d.SetPrice(c.Price, original, c.DiscountPercentage)
	return model.PriceUpdate{
		Price:              d.Price,
		OriginalPrice:      d.OriginalPrice,
		DiscountPercentage: d.DiscountPercentage,
	}
}
