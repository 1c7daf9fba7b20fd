// Package dedup decides whether a candidate deal duplicates an existing one.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/model"
)

// Catalog is the read side of the deal store used for duplicate checks.
type Catalog interface {
	// FindDealByURL returns nil, nil when no deal has the URL.
	FindDealByURL(ctx context.Context, productURL string) (*model.Deal, error)
	// FindDealsByMerchant returns the merchant's most recent deals.
	FindDealsByMerchant(ctx context.Context, merchant string, limit int) ([]model.Deal, error)
}

// Config tunes the similarity check.
type Config struct {
	// Threshold is the minimum combined score (0-100) for a title match.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	// CharWeight is the weight of the character-level ratio; the word-level
	// Jaccard gets 1-CharWeight.
	CharWeight float64 `yaml:"char_weight" mapstructure:"char_weight"`
	// ComparisonLimit bounds how many same-merchant deals are compared.
	ComparisonLimit int `yaml:"comparison_limit" mapstructure:"comparison_limit"`
	// VariantGuard caps the score at VariantCap when model/size tokens differ.
	VariantGuard bool    `yaml:"variant_guard" mapstructure:"variant_guard"`
	VariantCap   float64 `yaml:"variant_cap" mapstructure:"variant_cap"`
}

// DefaultConfig returns a 75% threshold with an even character/word blend.
func DefaultConfig() Config {
	return Config{
		Threshold:       75,
		CharWeight:      0.5,
		ComparisonLimit: 500,
		VariantGuard:    true,
		VariantCap:      60,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.CharWeight <= 0 || c.CharWeight > 1 {
		c.CharWeight = def.CharWeight
	}
	if c.ComparisonLimit <= 0 {
		c.ComparisonLimit = def.ComparisonLimit
	}
	if c.VariantCap <= 0 {
		c.VariantCap = def.VariantCap
	}
	return c
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate      bool    `json:"is_duplicate"`
	SimilarityScore  float64 `json:"similarity_score"`
	MatchedDealID    string  `json:"matched_deal_id,omitempty"`
	MatchedDealPrice int64   `json:"matched_deal_price,omitempty"`
	Reason           string  `json:"reason"`

	// MatchedOriginalPrice is the matched deal's stored original price.
	MatchedOriginalPrice *int64 `json:"matched_original_price,omitempty"`
}

// Engine runs duplicate checks against a Catalog.
type Engine struct {
	catalog Catalog
	cfg     Config
}

// NewEngine creates an engine over catalog.
func NewEngine(catalog Catalog, cfg Config) *Engine {
	return &Engine{catalog: catalog, cfg: cfg.withDefaults()}
}

// WithCatalog returns a copy of e reading from catalog, typically a
// transaction-scoped store.
func (e *Engine) WithCatalog(catalog Catalog) *Engine {
	return &Engine{catalog: catalog, cfg: e.cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Check decides whether c duplicates an existing deal. An identical product
// URL always matches with score 100. Otherwise only same-merchant deals are
// compared and the highest-scoring one at or above the threshold wins.
func (e *Engine) Check(ctx context.Context, c model.CandidateDeal) (Result, error) {
	if c.ProductURL != "" {
		d, err := e.catalog.FindDealByURL(ctx, c.ProductURL)
		if err != nil {
			return Result{}, eris.Wrap(err, "dedup: find by url")
		}
		if d != nil {
			return Result{
				IsDuplicate:          true,
				SimilarityScore:      100,
				MatchedDealID:        d.ID,
				MatchedDealPrice:     d.Price,
				MatchedOriginalPrice: d.OriginalPrice,
				Reason:               "exact product url match",
			}, nil
		}
	}

	existing, err := e.catalog.FindDealsByMerchant(ctx, c.Merchant, e.cfg.ComparisonLimit)
	if err != nil {
		return Result{}, eris.Wrap(err, "dedup: find by merchant")
	}

	var best *model.Deal
	bestScore := -1.0
	for i := range existing {
		d := &existing[i]
		if !strings.EqualFold(d.Merchant, c.Merchant) {
			continue
		}
		score := Similarity(c.Title, d.Title, e.cfg)
		if score > bestScore {
			best, bestScore = d, score
		}
	}

	if best == nil {
		return Result{Reason: "no existing deals for merchant"}, nil
	}
	if bestScore < e.cfg.Threshold {
		return Result{
			SimilarityScore: bestScore,
			Reason:          fmt.Sprintf("best title similarity %.2f below threshold %.0f", bestScore, e.cfg.Threshold),
		}, nil
	}
	return Result{
		IsDuplicate:          true,
		SimilarityScore:      bestScore,
		MatchedDealID:        best.ID,
		MatchedDealPrice:     best.Price,
		MatchedOriginalPrice: best.OriginalPrice,
		Reason:               fmt.Sprintf("title similarity %.2f", bestScore),
	}, nil
}
