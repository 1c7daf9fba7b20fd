package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/browser"
	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/dedup"
	"github.com/dealpulse/ingest/internal/ingest"
	"github.com/dealpulse/ingest/internal/model"
	"github.com/dealpulse/ingest/internal/orchestrator"
	"github.com/dealpulse/ingest/internal/queue"
	"github.com/dealpulse/ingest/internal/scorer"
	"github.com/dealpulse/ingest/internal/scrape"
	"github.com/dealpulse/ingest/internal/store"
)

// appEnv holds everything the scrape/worker/serve commands share.
type appEnv struct {
	Store        store.Store
	Scrapers     *scrape.Registry
	Orchestrator *orchestrator.Orchestrator
	Queue        *queue.Queue
	Broker       queue.Broker
	Scorer       *scorer.Engine
}

// Close releases the broker and the store.
func (e *appEnv) Close() {
	if e.Broker != nil {
		if err := e.Broker.Close(); err != nil {
			zap.L().Warn("close broker", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store, resolves
// the automation user and wires scrapers, ingestion, the queue and the
// scorer. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if err := scorer.ValidateConfig(cfg.Quality); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	botID, err := orchestrator.ResolveAutomationUser(ctx, st, cfg.Automation)
	if err != nil {
		env.Close()
		return nil, err
	}

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Broker = broker

	env.Scrapers = scrape.NewDefaultRegistry(browser.NewRodLauncher(rodConfig(cfg.Browser)), scrapeOptions(cfg))
	in := ingest.New(st, dedup.NewEngine(st, dedupConfig(cfg.Dedup)))
	env.Orchestrator = orchestrator.New(st, env.Scrapers, in, orchestrator.Config{
		AutomationUserID: botID,
		Schedule:         cfg.Schedule,
	})
	env.Queue = queue.New(broker, queueConfig(cfg.Queue))
	env.Orchestrator.Register(env.Queue)
	env.Scorer = scorer.New(st, cfg.Quality)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("broker", cfg.Queue.Broker),
		zap.Strings("scrapers", env.Scrapers.Slugs()),
	)
	return env, nil
}

func newBroker(ctx context.Context, c *config.Config) (queue.Broker, error) {
	ret := queue.Retention{KeepCompleted: c.Queue.KeepCompleted, KeepFailed: c.Queue.KeepFailed}
	switch c.Queue.Broker {
	case "redis":
		rdb, err := queue.NewRedisClient(ctx, c.Redis.URL)
		if err != nil {
			return nil, err
		}
		return queue.NewRedisBroker(rdb, c.Redis.KeyPrefix, ret), nil
	case "memory", "":
		return queue.NewMemoryBroker(ret), nil
	default:
		return nil, eris.Errorf("unknown queue broker %q", c.Queue.Broker)
	}
}

func rodConfig(c config.BrowserConfig) browser.RodConfig {
	return browser.RodConfig{
		BinPath:        c.BinPath,
		Headless:       c.Headless,
		NoSandbox:      c.NoSandbox,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		UserAgent:      c.UserAgent,
	}
}

func scrapeOptions(c *config.Config) scrape.Options {
	opts := scrape.DefaultOptions()
	if c.Browser.MaxRetries > 0 {
		opts.Navigate.MaxRetries = c.Browser.MaxRetries
	}
	if c.Browser.RetryBaseSecs > 0 {
		opts.Navigate.RetryBase = time.Duration(c.Browser.RetryBaseSecs) * time.Second
	}
	if c.Browser.NavTimeoutSecs > 0 {
		opts.Navigate.Timeout = time.Duration(c.Browser.NavTimeoutSecs) * time.Second
	}
	if c.Scrape.PageDelayMs >= 0 {
		opts.PageDelay = time.Duration(c.Scrape.PageDelayMs) * time.Millisecond
	}
	return opts
}

func dedupConfig(c config.DedupConfig) dedup.Config {
	return dedup.Config{
		Threshold:       c.Threshold,
		CharWeight:      c.CharWeight,
		ComparisonLimit: c.ComparisonLimit,
		VariantGuard:    c.VariantGuard,
		VariantCap:      c.VariantCap,
	}
}

func queueConfig(c config.QueueConfig) queue.Config {
	qc := queue.DefaultConfig()
	if c.Workers > 0 {
		qc.Workers = c.Workers
	}
	if c.MaxAttempts > 0 {
		qc.MaxAttempts = c.MaxAttempts
	}
	if c.BackoffBaseSecs > 0 {
		qc.Backoff = model.BackoffPolicy{Initial: time.Duration(c.BackoffBaseSecs) * time.Second, Multiplier: 2}
	}
	return qc
}
