package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/metrics"
	"github.com/dealpulse/ingest/internal/resilience"
)

// NavigateConfig controls navigation retries.
type NavigateConfig struct {
	// MaxRetries is the total number of attempts. Default: 3.
	MaxRetries int
	// RetryBase is the delay before the second attempt. Later delays grow
	// exponentially (RetryBase * 2^(attempt-1): 2s, 4s), not linearly
	// with the attempt number. Default: 2s.
	RetryBase time.Duration
	// Timeout bounds each attempt. Default: 30s.
	Timeout time.Duration
}

// DefaultNavigateConfig returns 3 attempts, 2s base backoff, 30s timeout.
func DefaultNavigateConfig() NavigateConfig {
	return NavigateConfig{
		MaxRetries: 3,
		RetryBase:  2 * time.Second,
		Timeout:    30 * time.Second,
	}
}

func (c NavigateConfig) withDefaults() NavigateConfig {
	def := DefaultNavigateConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = def.RetryBase
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

func (c NavigateConfig) retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxRetries,
		InitialBackoff: c.RetryBase,
		MaxBackoff:     c.RetryBase * 16,
		Multiplier:     2,
	}
}

// Navigate loads url on page and returns the rendered HTML. Each attempt is
// bounded by cfg.Timeout; failures (including anti-bot block pages) are
// retried with exponential backoff. After MaxRetries failed attempts the
// last error is returned.
func Navigate(ctx context.Context, page Page, url string, cfg NavigateConfig) (string, error) {
	cfg = cfg.withDefaults()

	retry := cfg.retryConfig()
	retry.OnRetry = func(attempt int, err error) {
		metrics.NavigationRetries.Inc()
		resilience.RetryLogger("browser", "navigate", zap.String("url", url))(attempt, err)
	}

	html, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return navigateOnce(ctx, page, url, cfg.Timeout)
	})
	if err != nil {
		return "", eris.Wrapf(err, "browser: navigate %s after %d attempts", url, cfg.MaxRetries)
	}
	return html, nil
}

func navigateOnce(ctx context.Context, page Page, url string, timeout time.Duration) (string, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Navigate(actx, url); err != nil {
		if actx.Err() != nil && ctx.Err() == nil {
			return "", resilience.NewTransient(eris.Errorf("navigation timeout after %s", timeout), "navigate")
		}
		return "", resilience.NewTransient(err, "navigate")
	}

	html, err := page.HTML(actx)
	if err != nil {
		return "", resilience.NewTransient(err, "read html")
	}

	if blocked, kind := DetectBlock(html); blocked {
		metrics.BlockedPages.WithLabelValues(string(kind)).Inc()
		return "", resilience.NewTransient(eris.Errorf("blocked page (%s)", kind), "navigate")
	}
	return html, nil
}
