package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealpulse/ingest/internal/browser"
	"github.com/dealpulse/ingest/internal/browser/browsertest"
	"github.com/dealpulse/ingest/internal/resilience"
)

const productHTML = `<html><head><title>Sony WH-1000XM5</title></head><body><span id="productTitle">Sony WH-1000XM5</span></body></html>`

func fastNav() browser.NavigateConfig {
	return browser.NavigateConfig{MaxRetries: 3, RetryBase: time.Millisecond, Timeout: time.Second}
}

func openPage(t *testing.T, l *browsertest.Launcher) browser.Page {
	t.Helper()
	sess, err := l.Open(context.Background())
	require.NoError(t, err)
	page, err := sess.NewPage(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = page.Close()
		_ = sess.Close()
	})
	return page
}

func TestNavigate_Success(t *testing.T) {
	url := "https://www.amazon.in/dp/B09XS7JWHH"
	l := browsertest.New(map[string]string{url: productHTML})

	html, err := browser.Navigate(context.Background(), openPage(t, l), url, fastNav())
	require.NoError(t, err)
	assert.Contains(t, html, "WH-1000XM5")
	assert.Equal(t, 1, l.VisitCount(url))
}

func TestNavigate_RecoversAfterTransientFailures(t *testing.T) {
	url := "https://www.flipkart.com/p/itm123"
	l := browsertest.New(map[string]string{url: productHTML})
	l.Fail(url, errors.New("net::ERR_CONNECTION_RESET"), errors.New("net::ERR_TIMED_OUT"))

	html, err := browser.Navigate(context.Background(), openPage(t, l), url, fastNav())
	require.NoError(t, err)
	assert.NotEmpty(t, html)
	assert.Equal(t, 3, l.VisitCount(url))
}

func TestNavigate_ExhaustsExactlyMaxRetries(t *testing.T) {
	url := "https://www.myntra.com/down"
	l := browsertest.New(nil)

	cfg := fastNav()
	cfg.MaxRetries = 4
	_, err := browser.Navigate(context.Background(), openPage(t, l), url, cfg)
	require.Error(t, err)
	assert.Equal(t, 4, l.VisitCount(url))
	assert.True(t, resilience.IsTransient(err))
}

func TestNavigate_BlockedPageIsRetried(t *testing.T) {
	url := "https://www.amazon.in/blocked"
	l := browsertest.New(map[string]string{
		url: `<html><body>Type the characters you see in this image. Sorry, we just need to make sure you're not a robot.</body></html>`,
	})

	_, err := browser.Navigate(context.Background(), openPage(t, l), url, fastNav())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked page")
	assert.Equal(t, 3, l.VisitCount(url))
}

func TestNavigate_CancelledContextStops(t *testing.T) {
	url := "https://www.amazon.in/dp/X"
	l := browsertest.New(map[string]string{url: productHTML})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := browser.Navigate(ctx, openPage(t, l), url, fastNav())
	require.Error(t, err)
	assert.Equal(t, 0, l.VisitCount(url))
}

func TestWithSession_ClosesOnError(t *testing.T) {
	l := browsertest.New(nil)

	err := browser.WithSession(context.Background(), l, func(sess browser.Session) error {
		return browser.WithPage(context.Background(), sess, func(browser.Page) error {
			return errors.New("extraction failed")
		})
	})
	require.Error(t, err)
	assert.Equal(t, 1, l.Opened)
	assert.True(t, l.Balanced())
}

func TestWithSession_ClosesOnPanic(t *testing.T) {
	l := browsertest.New(nil)

	assert.Panics(t, func() {
		_ = browser.WithSession(context.Background(), l, func(browser.Session) error {
			panic("boom")
		})
	})
	assert.True(t, l.Balanced())
}

func TestWithSession_OpenError(t *testing.T) {
	l := browsertest.New(nil)
	l.OpenErr = errors.New("chromium not found")

	called := false
	err := browser.WithSession(context.Background(), l, func(browser.Session) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
