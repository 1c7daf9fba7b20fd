package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dealpulse/ingest/internal/model"
)

func TestFreshnessScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{time.Hour, 40},
		{5 * time.Hour, 35},
		{10 * time.Hour, 30},
		{20 * time.Hour, 25},
		{40 * time.Hour, 20},
		{70 * time.Hour, 15},
		{100 * time.Hour, 10},
		{9 * 24 * time.Hour, 8},
		{30 * 24 * time.Hour, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, freshnessScore(now.Add(-tt.age), now), 0.001, "age %s", tt.age)
	}
}

func TestTrendScore(t *testing.T) {
	tests := []struct {
		name    string
		history []model.PriceHistoryEntry // newest first
		want    float64
	}{
		{"too few points", historyOf(900, 1000), 15},
		{"steep drop", historyOf(800, 900, 1000), 30},
		{"moderate drop", historyOf(950, 975, 1000), 25},
		{"slight drop", historyOf(985, 990, 1000), 20},
		{"flat", historyOf(1000, 1000, 1000, 1000), 15},
		{"slight rise", historyOf(1020, 1010, 1000), 10},
		{"steep rise", historyOf(1200, 1100, 1000), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trendScore(tt.history, 10), 0.001)
		})
	}
}

func TestTrendScore_UsesWindow(t *testing.T) {
	h := historyOf(1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000, 5000, 5000)
	assert.InDelta(t, 15, trendScore(h, 10), 0.001)
	assert.InDelta(t, 30, trendScore(h, 12), 0.001)
}

func TestExpiryScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	tests := []struct {
		name string
		deal model.Deal
		want float64
	}{
		{"no expiry", model.Deal{}, 15},
		{"flagged expired", model.Deal{IsExpired: true, ExpiresAt: at(48 * time.Hour)}, 0},
		{"past expiry", model.Deal{ExpiresAt: at(-time.Hour)}, 0},
		{"3 hours", model.Deal{ExpiresAt: at(3 * time.Hour)}, 30},
		{"12 hours", model.Deal{ExpiresAt: at(12 * time.Hour)}, 25},
		{"2 days", model.Deal{ExpiresAt: at(48 * time.Hour)}, 20},
		{"4 days", model.Deal{ExpiresAt: at(100 * time.Hour)}, 12},
		{"2 weeks", model.Deal{ExpiresAt: at(300 * time.Hour)}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, expiryScore(tt.deal, now), 0.001)
		})
	}
}

func TestUrgency(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := model.Deal{CreatedAt: now.Add(-time.Hour)}
	assert.Equal(t, 85, Urgency(d, historyOf(22000, 25000, 26000), now, 10))
	assert.Equal(t, 70, Urgency(d, nil, now, 10))
}
