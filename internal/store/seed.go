package store

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dealpulse/ingest/internal/model"
)

// DefaultScrapingIntervalHours applies when a merchant entry omits it.
const DefaultScrapingIntervalHours = 6

type merchantEntry struct {
	Slug                  string `yaml:"slug"`
	Name                  string `yaml:"name"`
	Active                *bool  `yaml:"active"`
	ScrapingEnabled       bool   `yaml:"scraping_enabled"`
	ScrapingIntervalHours int    `yaml:"scraping_interval_hours"`
}

type merchantsFile struct {
	Merchants []merchantEntry `yaml:"merchants"`
}

// LoadMerchants reads a merchants.yaml file.
func LoadMerchants(path string) ([]model.Merchant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read merchants file %s", path)
	}
	return ParseMerchants(data)
}

// ParseMerchants decodes merchant definitions. Entries default to active
// with a 6 hour scraping interval.
func ParseMerchants(data []byte) ([]model.Merchant, error) {
	var f merchantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "store: parse merchants")
	}

	seen := make(map[string]bool, len(f.Merchants))
	out := make([]model.Merchant, 0, len(f.Merchants))
	for i, e := range f.Merchants {
		slug := normalizeSlug(e.Slug)
		if slug == "" || e.Name == "" {
			return nil, eris.Errorf("store: merchant %d needs slug and name", i)
		}
		if seen[slug] {
			return nil, eris.Errorf("store: duplicate merchant slug %q", slug)
		}
		seen[slug] = true

		m := model.Merchant{
			Slug:                  slug,
			Name:                  e.Name,
			IsActive:              e.Active == nil || *e.Active,
			ScrapingEnabled:       e.ScrapingEnabled,
			ScrapingIntervalHours: e.ScrapingIntervalHours,
		}
		if m.ScrapingIntervalHours <= 0 {
			m.ScrapingIntervalHours = DefaultScrapingIntervalHours
		}
		out = append(out, m)
	}
	return out, nil
}

// Seed upserts merchant configuration into the store.
func Seed(ctx context.Context, st Store, merchants []model.Merchant) (int64, error) {
	if len(merchants) == 0 {
		return 0, nil
	}
	n, err := st.UpsertMerchants(ctx, merchants)
	if err != nil {
		return 0, err
	}
	zap.L().Info("store: seeded merchants", zap.Int("count", len(merchants)), zap.Int64("affected", n))
	return n, nil
}
