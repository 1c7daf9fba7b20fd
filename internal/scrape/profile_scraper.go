package scrape

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealpulse/ingest/internal/browser"
	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/resilience"
)

// Options are shared by every profile scraper.
type Options struct {
	Navigate browser.NavigateConfig
	// PageDelay is the minimum pause between page visits in one run.
	PageDelay time.Duration
}

// DefaultOptions returns a 2s page delay and default navigation retries.
func DefaultOptions() Options {
	return Options{
		Navigate:  browser.DefaultNavigateConfig(),
		PageDelay: 2 * time.Second,
	}
}

// ProfileScraper implements Scraper for any merchant described by a Profile.
// Every run launches its own browser session and tears it down on return.
type ProfileScraper struct {
	profile  Profile
	launcher browser.Launcher
	opts     Options
}

// NewProfileScraper creates a scraper for profile.
func NewProfileScraper(profile Profile, l browser.Launcher, opts Options) *ProfileScraper {
	return &ProfileScraper{profile: profile, launcher: l, opts: opts}
}

// Merchant implements Scraper.
func (s *ProfileScraper) Merchant() string { return s.profile.Merchant }

// Profile returns the scraper's merchant profile.
func (s *ProfileScraper) Profile() Profile { return s.profile }

func (s *ProfileScraper) limiter() *rate.Limiter {
	if s.opts.PageDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(s.opts.PageDelay), 1)
}

// ScrapeDailyDeals implements Scraper. Listing pages are visited one at a
// time. A page that still fails after retries is skipped; the run only
// fails when every page failed.
func (s *ProfileScraper) ScrapeDailyDeals(ctx context.Context) ([]model.CandidateDeal, error) {
	log := zap.L().With(zap.String("merchant", s.profile.Merchant))
	lim := s.limiter()

	var (
		out     []model.CandidateDeal
		lastErr error
		okPages int
	)
	err := browser.WithSession(ctx, s.launcher, func(sess browser.Session) error {
		return browser.WithPage(ctx, sess, func(page browser.Page) error {
			for _, listing := range s.profile.ListingURLs {
				if err := lim.Wait(ctx); err != nil {
					return eris.Wrap(err, "scrape: page delay")
				}

				html, err := browser.Navigate(ctx, page, listing, s.opts.Navigate)
				if err != nil {
					if ctx.Err() != nil {
						return err
					}
					log.Warn("scrape: listing page failed", zap.String("url", listing), zap.Error(err))
					lastErr = err
					continue
				}
				okPages++

				cards := s.profile.ExtractListing(html)
				log.Debug("scrape: listing page extracted",
					zap.String("url", listing),
					zap.Int("candidates", len(cards)),
				)
				out = append(out, cards...)
			}
			return nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: %s daily deals", s.profile.Slug)
	}
	if okPages == 0 && lastErr != nil {
		return nil, eris.Wrapf(lastErr, "scrape: %s all listing pages failed", s.profile.Slug)
	}
	return out, nil
}

// ScrapeProductByURL implements Scraper.
func (s *ProfileScraper) ScrapeProductByURL(ctx context.Context, rawURL string) (*model.CandidateDeal, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || !s.profile.SupportsHost(u.Hostname()) {
		return nil, resilience.NewPermanent(eris.Wrapf(ErrUnsupportedURL, "%s for %s", rawURL, s.profile.Merchant))
	}

	var cand *model.CandidateDeal
	err = browser.WithSession(ctx, s.launcher, func(sess browser.Session) error {
		return browser.WithPage(ctx, sess, func(page browser.Page) error {
			html, err := browser.Navigate(ctx, page, rawURL, s.opts.Navigate)
			if err != nil {
				return err
			}
			cand = s.profile.ExtractProduct(html, rawURL)
			return nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: %s product", s.profile.Slug)
	}
	if cand == nil {
		zap.L().Info("scrape: page is not a product page",
			zap.String("merchant", s.profile.Merchant),
			zap.String("url", rawURL),
		)
	}
	return cand, nil
}
