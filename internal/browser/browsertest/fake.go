// Package browsertest provides an in-memory browser.Launcher serving fixture
// HTML, for scraper tests that must not start Chromium.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/dealpulse/ingest/internal/browser"
)

// Launcher serves Pages keyed by URL. Errors[url] holds a queue of errors
// returned by successive Navigate calls before the page succeeds.
type Launcher struct {
	mu     sync.Mutex
	Pages  map[string]string
	Errors map[string][]error

	Opened   int
	Closed   int
	Visits   []string
	OpenErr  error
	PageOpen int
	PageShut int
}

// New creates a fake launcher with the given URL → HTML fixtures.
func New(pages map[string]string) *Launcher {
	if pages == nil {
		pages = map[string]string{}
	}
	return &Launcher{Pages: pages, Errors: map[string][]error{}}
}

// Fail queues errs for url; each Navigate pops one.
func (l *Launcher) Fail(url string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors[url] = append(l.Errors[url], errs...)
}

// VisitCount returns how many times url was navigated.
func (l *Launcher) VisitCount(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.Visits {
		if v == url {
			n++
		}
	}
	return n
}

// Balanced reports whether every opened session and page was closed.
func (l *Launcher) Balanced() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Opened == l.Closed && l.PageOpen == l.PageShut
}

// Open implements browser.Launcher.
func (l *Launcher) Open(_ context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	l.Opened++
	return &session{l: l}, nil
}

type session struct {
	l *Launcher
}

func (s *session) NewPage(_ context.Context) (browser.Page, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.PageOpen++
	return &page{l: s.l}, nil
}

func (s *session) Close() error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.Closed++
	return nil
}

type page struct {
	l       *Launcher
	current string
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	p.l.Visits = append(p.l.Visits, url)
	if q := p.l.Errors[url]; len(q) > 0 {
		p.l.Errors[url] = q[1:]
		return q[0]
	}
	if _, ok := p.l.Pages[url]; !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	p.current = url
	return nil
}

func (p *page) HTML(_ context.Context) (string, error) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	return p.l.Pages[p.current], nil
}

func (p *page) Close() error {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	p.l.PageShut++
	return nil
}
