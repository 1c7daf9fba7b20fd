package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dealpulse/ingest/internal/config"
)

// DefaultQualityConfig returns a config.QualityConfig with sensible defaults.
// Weights sum to 1.
func DefaultQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		Weights: config.QualityWeights{
			Value:        0.40,
			Authenticity: 0.25,
			Urgency:      0.20,
			Social:       0.15,
		},
		NeutralScore:   50,
		CandidatePool:  100,
		MinDiscount:    15,
		HistoryWindow:  90,
		MerchantWindow: 50,
		TrendWindow:    10,
		MaxBadges:      5,
		Concurrency:    8,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.QualityConfig) float64 {
	w := c.Weights
	return w.Value + w.Authenticity + w.Urgency + w.Social
}

// ValidateConfig checks that a QualityConfig is internally consistent.
func ValidateConfig(c config.QualityConfig) error {
	var errs []string

	weights := map[string]float64{
		"weights.value":        c.Weights.Value,
		"weights.authenticity": c.Weights.Authenticity,
		"weights.urgency":      c.Weights.Urgency,
		"weights.social":       c.Weights.Social,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if sum := WeightSum(c); math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1.0, got %.3f", sum))
	}

	if c.NeutralScore < 0 || c.NeutralScore > 100 {
		errs = append(errs, "neutral_score must be between 0 and 100")
	}
	if c.MinDiscount < 0 || c.MinDiscount > 100 {
		errs = append(errs, "min_discount must be between 0 and 100")
	}
	if c.MaxBadges < 0 {
		errs = append(errs, "max_badges must be >= 0")
	}
	if c.CandidatePool < 0 || c.HistoryWindow < 0 || c.MerchantWindow < 0 || c.TrendWindow < 0 {
		errs = append(errs, "windows must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// withDefaults fills zero windows and limits from DefaultQualityConfig.
// All-zero weights fall back to the default weights.
func withDefaults(c config.QualityConfig) config.QualityConfig {
	def := DefaultQualityConfig()
	if WeightSum(c) == 0 {
		c.Weights = def.Weights
	}
	if c.NeutralScore == 0 {
		c.NeutralScore = def.NeutralScore
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = def.CandidatePool
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = def.HistoryWindow
	}
	if c.MerchantWindow <= 0 {
		c.MerchantWindow = def.MerchantWindow
	}
	if c.TrendWindow <= 0 {
		c.TrendWindow = def.TrendWindow
	}
	if c.MaxBadges <= 0 {
		c.MaxBadges = def.MaxBadges
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	return c
}
