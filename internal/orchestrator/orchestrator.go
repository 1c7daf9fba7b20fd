// Package orchestrator implements the ingestion job handlers: scrape one
// merchant, fan out over every merchant, and ingest a user-submitted
// product URL.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/ingest"
	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/queue"
	"github.com/dealpulse/ingest/internal/resilience"
	"github.com/dealpulse/ingest/internal/scrape"
	"github.com/dealpulse/ingest/internal/store"
)

// ErrMerchantNotFound is returned when a job names an unknown merchant.
var ErrMerchantNotFound = errors.New("orchestrator: merchant not found")

// MerchantStore is the merchant configuration and sync metadata the
// handlers read and write.
type MerchantStore interface {
	GetMerchant(ctx context.Context, slug string) (*model.Merchant, error)
	ListMerchants(ctx context.Context) ([]model.Merchant, error)
	RecordMerchantSync(ctx context.Context, slug string, at time.Time, created int) error
}

// Scrapers resolves merchant scrapers; *scrape.Registry satisfies it.
type Scrapers interface {
	Get(merchant string) (scrape.Scraper, error)
	InferMerchant(rawURL string) (string, error)
}

// Ingester persists candidates; *ingest.Ingester satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, c model.CandidateDeal, authorID string, source model.PriceSource) (ingest.Result, error)
	IngestAll(ctx context.Context, cands []model.CandidateDeal, authorID string, source model.PriceSource) (ingest.Tally, error)
}

// Config holds values resolved once at startup.
type Config struct {
	// AutomationUserID is the author recorded on scraped deals.
	AutomationUserID string
	Schedule         config.ScheduleConfig
}

// Orchestrator wires scrapers, ingestion and the queue together.
type Orchestrator struct {
	merchants MerchantStore
	scrapers  Scrapers
	ingester  Ingester
	cfg       Config
	q         queue.Enqueuer
	now       func() time.Time
}

// New creates an orchestrator. Call Register before enqueuing jobs.
func New(merchants MerchantStore, scrapers Scrapers, in Ingester, cfg Config) *Orchestrator {
	return &Orchestrator{
		merchants: merchants,
		scrapers:  scrapers,
		ingester:  in,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Register installs the job handlers on q. The fan-out job enqueues back
// into the same queue.
func (o *Orchestrator) Register(q *queue.Queue) {
	o.q = q
	q.Register(model.JobScrapeMerchant, o.ScrapeMerchant)
	q.Register(model.JobScrapeAllMerchants, o.ScrapeAllMerchants)
	q.Register(model.JobScrapeProductURL, o.ScrapeProductURL)
}

// ResolveAutomationUser returns the ID of the automation identity, creating
// it on first use.
func ResolveAutomationUser(ctx context.Context, users interface {
	EnsureUser(ctx context.Context, email, name string) (*model.User, error)
}, cfg config.AutomationConfig) (string, error) {
	u, err := users.EnsureUser(ctx, cfg.Email, cfg.Name)
	if err != nil {
		return "", eris.Wrap(err, "orchestrator: resolve automation user")
	}
	return u.ID, nil
}

// ScrapeMerchant scrapes one merchant's listing pages and ingests every
// candidate. An inactive or scraping-disabled merchant completes with no
// work. Unknown merchants and merchants without a scraper fail without
// retry.
func (o *Orchestrator) ScrapeMerchant(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	slug := job.Payload.Merchant
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("merchant", slug))
	start := o.now()

	m, err := o.merchant(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !m.Scrapable() {
		log.Info("orchestrator: merchant not scrapable, skipping",
			zap.Bool("active", m.IsActive),
			zap.Bool("scraping_enabled", m.ScrapingEnabled),
		)
		return &model.JobResult{Merchant: m.Slug, Note: "merchant inactive or scraping disabled"}, nil
	}

	s, err := o.scrapers.Get(m.Slug)
	if err != nil {
		return nil, err
	}

	cands, err := s.ScrapeDailyDeals(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: scrape %s", m.Slug)
	}

	tally, err := o.ingester.IngestAll(ctx, cands, o.cfg.AutomationUserID, model.PriceSourceScraper)
	if err != nil {
		return nil, err
	}

	if err := o.merchants.RecordMerchantSync(ctx, m.Slug, o.now(), tally.Created); err != nil {
		log.Warn("orchestrator: record merchant sync failed", zap.Error(err))
	}

	res := &model.JobResult{
		Merchant:   m.Slug,
		Scraped:    len(cands),
		Created:    tally.Created,
		Updated:    tally.Updated,
		Skipped:    tally.Skipped,
		Errors:     tally.Errors,
		ErrorLog:   tally.ErrorLog,
		Duration:   o.now().Sub(start),
		FinishedAt: o.now(),
	}
	log.Info("orchestrator: merchant scraped",
		zap.Int("scraped", res.Scraped),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ScrapeAllMerchants enqueues one scrape-merchant job per scrapable
// merchant. A failed enqueue is recorded and the fan-out continues.
func (o *Orchestrator) ScrapeAllMerchants(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	if o.q == nil {
		return nil, resilience.NewPermanent(eris.New("orchestrator: no queue registered"))
	}
	merchants, err := o.merchants.ListMerchants(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: list merchants")
	}

	res := &model.JobResult{}
	for _, m := range merchants {
		if !m.Scrapable() {
			res.Skipped++
			continue
		}
		if _, err := o.q.Enqueue(ctx, model.JobScrapeMerchant, model.JobPayload{Merchant: m.Slug}); err != nil {
			res.Errors++
			res.ErrorLog = append(res.ErrorLog, m.Slug+": "+err.Error())
			zap.L().Warn("orchestrator: enqueue merchant failed",
				zap.String("job_id", job.ID),
				zap.String("merchant", m.Slug),
				zap.Error(err),
			)
			continue
		}
		res.Enqueued++
	}

	zap.L().Info("orchestrator: merchant scrapes enqueued",
		zap.String("job_id", job.ID),
		zap.Int("enqueued", res.Enqueued),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// ScrapeProductURL scrapes a single submitted product page and routes it
// through the same duplicate check as catalog scraping. The submitting
// user is the author of a new deal; a price drop is recorded as a manual
// observation.
func (o *Orchestrator) ScrapeProductURL(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	rawURL := job.Payload.URL
	slug, err := o.scrapers.InferMerchant(rawURL)
	if err != nil {
		return nil, err
	}
	s, err := o.scrapers.Get(slug)
	if err != nil {
		return nil, err
	}

	res := &model.JobResult{Merchant: slug}
	cand, err := s.ScrapeProductByURL(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: scrape url %s", rawURL)
	}
	if cand == nil {
		res.Skipped = 1
		res.Note = "page is not a product page"
		return res, nil
	}
	res.Scraped = 1

	author := job.Payload.UserID
	if author == "" {
		author = o.cfg.AutomationUserID
	}
	out, err := o.ingester.Ingest(ctx, *cand, author, model.PriceSourceManual)
	if err != nil {
		return nil, err
	}

	var t ingest.Tally
	t.Add(out.Outcome)
	res.Created, res.Updated, res.Skipped = t.Created, t.Updated, t.Skipped
	res.DealID = out.DealID
	res.Note = string(out.Outcome) + ": " + out.Check.Reason
	return res, nil
}

func (o *Orchestrator) merchant(ctx context.Context, slug string) (*model.Merchant, error) {
	if slug == "" {
		return nil, resilience.NewPermanent(eris.Wrap(ErrMerchantNotFound, "empty merchant"))
	}
	m, err := o.merchants.GetMerchant(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, resilience.NewPermanent(eris.Wrapf(ErrMerchantNotFound, "%q", slug))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: load merchant %s", slug)
	}
	return m, nil
}
