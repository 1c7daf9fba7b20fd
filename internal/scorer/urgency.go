package scorer

import (
	"math"
	"time"

	"github.com/dealpulse/ingest/internal/model"
)

func freshnessScore(created, now time.Time) float64 {
	hours := now.Sub(created).Hours()
	switch {
	case hours <= 2:
		return 40
	case hours <= 6:
		return 35
	case hours <= 12:
		return 30
	case hours <= 24:
		return 25
	case hours <= 48:
		return 20
	case hours <= 72:
		return 15
	case hours <= 168:
		return 10
	default:
		days := hours / 24
		return math.Max(0, 10-(days-7))
	}
}

// priceSlope returns the least-squares slope of the last window prices,
// relative to their mean. ok is false with fewer than 3 points.
// history is newest-first.
func priceSlope(history []model.PriceHistoryEntry, window int) (float64, bool) {
	n := min(len(history), window)
	if n < 3 {
		return 0, false
	}
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		ys[n-1-i] = float64(history[i].Price)
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	mean := sumY / fn
	if den == 0 || mean == 0 {
		return 0, true
	}
	slope := (fn*sumXY - sumX*sumY) / den
	return slope / mean, true
}

func trendScore(history []model.PriceHistoryEntry, window int) float64 {
	rel, ok := priceSlope(history, window)
	if !ok {
		return 15
	}
	switch {
	case rel <= -0.05:
		return 30
	case rel <= -0.02:
		return 25
	case rel < 0:
		return 20
	case rel == 0:
		return 15
	case rel < 0.02:
		return 10
	default:
		return 5
	}
}

func expiryScore(d model.Deal, now time.Time) float64 {
	if d.IsExpired {
		return 0
	}
	if d.ExpiresAt == nil {
		return 15
	}
	left := d.ExpiresAt.Sub(now)
	switch {
	case left <= 0:
		return 0
	case left <= 6*time.Hour:
		return 30
	case left <= 24*time.Hour:
		return 25
	case left <= 72*time.Hour:
		return 20
	case left <= 168*time.Hour:
		return 12
	default:
		return 8
	}
}

// Urgency scores listing freshness, recent price trend and expiry
// proximity, 0-100.
func Urgency(d model.Deal, history []model.PriceHistoryEntry, now time.Time, trendWindow int) int {
	s := freshnessScore(d.CreatedAt, now) + trendScore(history, trendWindow) + expiryScore(d, now)
	return clamp(s)
}
