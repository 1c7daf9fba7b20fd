// Package browser manages headless-browser sessions used by merchant
// scrapers: launch, page creation, navigation with retry, and teardown.
package browser

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Page is a single browser tab.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// HTML returns the rendered document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Session owns one browser process. It is never shared across job runs.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

// WithSession opens a session, runs fn and always closes the session, even
// when fn fails or panics.
func WithSession(ctx context.Context, l Launcher, fn func(Session) error) (err error) {
	sess, err := l.Open(ctx)
	if err != nil {
		return eris.Wrap(err, "browser: open session")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			zap.L().Warn("browser: close session", zap.Error(cerr))
		}
	}()
	return fn(sess)
}

// WithPage opens a page on sess, runs fn and closes the page afterwards.
func WithPage(ctx context.Context, sess Session, fn func(Page) error) error {
	page, err := sess.NewPage(ctx)
	if err != nil {
		return eris.Wrap(err, "browser: new page")
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			zap.L().Debug("browser: close page", zap.Error(cerr))
		}
	}()
	return fn(page)
}
