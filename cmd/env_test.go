package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/queue"
)

func TestQueueConfig(t *testing.T) {
	qc := queueConfig(config.QueueConfig{Workers: 4, MaxAttempts: 5, BackoffBaseSecs: 3})
	assert.Equal(t, 4, qc.Workers)
	assert.Equal(t, 5, qc.MaxAttempts)
	assert.Equal(t, 3*time.Second, qc.Backoff.Initial)
	assert.Equal(t, 2.0, qc.Backoff.Multiplier)

	def := queueConfig(config.QueueConfig{})
	assert.Equal(t, queue.DefaultConfig(), def)
}

func TestScrapeOptions(t *testing.T) {
	c := &config.Config{
		Browser: config.BrowserConfig{MaxRetries: 5, RetryBaseSecs: 1, NavTimeoutSecs: 10},
		Scrape:  config.ScrapeConfig{PageDelayMs: 500},
	}
	opts := scrapeOptions(c)
	assert.Equal(t, 5, opts.Navigate.MaxRetries)
	assert.Equal(t, time.Second, opts.Navigate.RetryBase)
	assert.Equal(t, 10*time.Second, opts.Navigate.Timeout)
	assert.Equal(t, 500*time.Millisecond, opts.PageDelay)
}

func TestDedupConfig(t *testing.T) {
	dc := dedupConfig(config.DedupConfig{Threshold: 80, CharWeight: 0.6, ComparisonLimit: 100, VariantGuard: true, VariantCap: 55})
	assert.Equal(t, 80.0, dc.Threshold)
	assert.Equal(t, 0.6, dc.CharWeight)
	assert.Equal(t, 100, dc.ComparisonLimit)
	assert.True(t, dc.VariantGuard)
	assert.Equal(t, 55.0, dc.VariantCap)
}

func TestRodConfig(t *testing.T) {
	rc := rodConfig(config.BrowserConfig{Headless: true, NoSandbox: true, ViewportWidth: 1280, ViewportHeight: 720, UserAgent: "ua"})
	assert.True(t, rc.Headless)
	assert.Equal(t, 1280, rc.ViewportWidth)
	assert.Equal(t, 720, rc.ViewportHeight)
	assert.Equal(t, "ua", rc.UserAgent)
}

func TestNewBroker(t *testing.T) {
	ctx := context.Background()

	b, err := newBroker(ctx, &config.Config{Queue: config.QueueConfig{Broker: "memory"}})
	require.NoError(t, err)
	assert.IsType(t, &queue.MemoryBroker{}, b)
	require.NoError(t, b.Close())

	mr := miniredis.RunT(t)
	b, err = newBroker(ctx, &config.Config{
		Queue: config.QueueConfig{Broker: "redis"},
		Redis: config.RedisConfig{URL: "redis://" + mr.Addr() + "/0", KeyPrefix: "test"},
	})
	require.NoError(t, err)
	assert.IsType(t, &queue.RedisBroker{}, b)
	require.NoError(t, b.Close())

	_, err = newBroker(ctx, &config.Config{Queue: config.QueueConfig{Broker: "kafka"}})
	assert.Error(t, err)
}

func TestScrapeAllErr(t *testing.T) {
	assert.NoError(t, scrapeAllErr(context.Background(), 0, 3))
	assert.ErrorContains(t, scrapeAllErr(context.Background(), 1, 3), "1 of 3 merchant scrapes failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, scrapeAllErr(ctx, 0, 1))
}
