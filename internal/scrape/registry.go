package scrape

import (
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/browser"
	"github.com/dealpulse/ingest/internal/resilience"
)

// Registry maps merchant slugs to scrapers.
type Registry struct {
	scrapers map[string]Scraper
	hosts    map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scrapers: make(map[string]Scraper),
		hosts:    make(map[string][]string),
	}
}

// NewDefaultRegistry registers a ProfileScraper for every built-in profile.
func NewDefaultRegistry(l browser.Launcher, opts Options) *Registry {
	r := NewRegistry()
	for _, p := range DefaultProfiles() {
		r.Register(p.Slug, p.Hosts, NewProfileScraper(p, l, opts))
	}
	return r
}

// Register adds s under slug and the given hosts. Slugs are case-insensitive.
func (r *Registry) Register(slug string, hosts []string, s Scraper) {
	key := strings.ToLower(slug)
	r.scrapers[key] = s
	r.hosts[key] = hosts
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.scrapers))
	for k := range r.scrapers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the scraper for a merchant slug or canonical name.
func (r *Registry) Get(merchant string) (Scraper, error) {
	if s, ok := r.scrapers[strings.ToLower(merchant)]; ok {
		return s, nil
	}
	return nil, resilience.NewPermanent(eris.Wrapf(ErrNoScraper, "%q", merchant))
}

// InferMerchant returns the slug whose hosts serve rawURL.
func (r *Registry) InferMerchant(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", resilience.NewPermanent(eris.Wrapf(ErrUnsupportedURL, "%q", rawURL))
	}
	for _, slug := range r.Slugs() {
		if matchHost(u.Hostname(), r.hosts[slug]) {
			return slug, nil
		}
	}
	return "", resilience.NewPermanent(eris.Wrapf(ErrUnsupportedURL, "host %q", u.Hostname()))
}

// ForURL resolves the scraper serving rawURL.
func (r *Registry) ForURL(rawURL string) (Scraper, error) {
	slug, err := r.InferMerchant(rawURL)
	if err != nil {
		return nil, err
	}
	return r.Get(slug)
}
