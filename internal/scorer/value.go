package scorer

import (
	"math"
	"sort"

	"github.com/dealpulse/ingest/internal/model"
)

// discountScore maps discount depth to 0-40 on a step function. Claims above
// 70% on items under ₹1000 are scaled by 0.6; that penalty sits in its own
// tiers (71-79, 80+) so each tier stays flat.
func discountScore(discount int, price int64) float64 {
	var s float64
	switch {
	case discount >= 80:
		s = 40
	case discount > 70:
		s = 35
	case discount >= 60:
		s = 35
	case discount >= 40:
		s = 28
	case discount >= 25:
		s = 20
	case discount >= 15:
		s = 12
	default:
		s = float64(max(discount, 0)) * 0.8
	}
	if discount > 70 && price < 1000 {
		s *= 0.6
	}
	return s
}

// historyPositionScore compares price against the trailing history:
// 40 at or below the all-time low, down to a floor of 2 well above median.
func historyPositionScore(price int64, history []model.PriceHistoryEntry) float64 {
	if len(history) < 2 {
		return 20
	}
	prices := make([]float64, len(history))
	low := math.MaxFloat64
	for i, h := range history {
		prices[i] = float64(h.Price)
		low = math.Min(low, prices[i])
	}
	p := float64(price)
	if p <= low {
		return 40
	}

	m := median(prices)
	if m <= 0 {
		return 20
	}
	if p <= m {
		below := (m - p) / m
		switch {
		case below >= 0.30:
			return 35
		case below >= 0.15:
			return 28
		case below >= 0.05:
			return 22
		default:
			return 18
		}
	}
	over := (p - m) / m
	return math.Max(2, 15-over*50)
}

// savingsBonus tiers the absolute rupee saving, 0-20.
func savingsBonus(savings int64) float64 {
	switch {
	case savings >= 50_000:
		return 20
	case savings >= 20_000:
		return 15
	case savings >= 10_000:
		return 12
	case savings >= 5_000:
		return 8
	case savings >= 2_000:
		return 5
	case savings >= 1_000:
		return 3
	default:
		return 0
	}
}

// ValueProposition scores discount depth, price-history position and
// absolute savings, 0-100.
func ValueProposition(d model.Deal, history []model.PriceHistoryEntry) int {
	s := discountScore(d.Discount(), d.Price) +
		historyPositionScore(d.Price, history) +
		savingsBonus(d.Savings())
	return clamp(s)
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func clamp(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
