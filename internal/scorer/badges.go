package scorer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dealpulse/ingest/internal/model"
)

// Badge labels, in display order.
const (
	BadgeExceptional   = "Exceptional Deal"
	BadgeGreat         = "Great Deal"
	BadgeGood          = "Good Deal"
	BadgeLowestPrice   = "Lowest Price Ever"
	BadgeHugeDiscount  = "Huge Discount"
	BadgeBigSavings    = "Big Savings"
	BadgeVerified      = "Verified"
	BadgeTrusted       = "Trusted Merchant"
	BadgeJustIn        = "Just In"
	BadgeEndingSoon    = "Ending Soon"
	BadgePriceDropping = "Price Dropping"
	BadgeCommunityPick = "Community Favorite"
	BadgeHotDiscussion = "Hot Discussion"
)

type signals struct {
	deal       model.Deal
	total      int
	breakdown  model.ScoreBreakdown
	atLow      bool
	trust      float64
	age        time.Duration
	trend      float64
	expiryLeft *time.Duration
}

func badges(s signals, limit int) []string {
	out := make([]string, 0, limit)
	add := func(ok bool, b string) {
		if ok && len(out) < limit {
			out = append(out, b)
		}
	}

	switch {
	case s.total >= 85:
		add(true, BadgeExceptional)
	case s.total >= 70:
		add(true, BadgeGreat)
	case s.total >= 55:
		add(true, BadgeGood)
	}

	d := s.deal
	add(s.atLow, BadgeLowestPrice)
	add(d.Discount() >= 50, BadgeHugeDiscount)
	add(d.Savings() >= 10_000, BadgeBigSavings)

	add(d.Verified || d.VerificationStatus == model.VerificationVerified, BadgeVerified)
	add(s.trust >= 32, BadgeTrusted)

	add(s.age >= 0 && s.age <= 6*time.Hour, BadgeJustIn)
	add(s.expiryLeft != nil && *s.expiryLeft > 0 && *s.expiryLeft <= 24*time.Hour, BadgeEndingSoon)
	add(s.trend >= 25, BadgePriceDropping)

	votes := d.Upvotes + d.Downvotes
	add(votes >= 50 && float64(d.Upvotes)/float64(votes) >= 0.8, BadgeCommunityPick)
	add(d.CommentCount >= 10, BadgeHotDiscussion)

	return out
}

func reasoning(s signals) string {
	d := s.deal
	parts := []string{}

	if disc := d.Discount(); disc > 0 {
		parts = append(parts, fmt.Sprintf("%d%% off", disc))
	}
	if s.atLow {
		parts = append(parts, "lowest tracked price")
	}
	if sv := d.Savings(); sv >= 1_000 {
		parts = append(parts, fmt.Sprintf("saves ₹%d", sv))
	}
	switch {
	case d.Verified || d.VerificationStatus == model.VerificationVerified:
		parts = append(parts, "verified")
	case d.AutoFlagged:
		parts = append(parts, "flagged for review")
	}
	if s.expiryLeft != nil && *s.expiryLeft > 0 && *s.expiryLeft <= 24*time.Hour {
		parts = append(parts, "ends within a day")
	}
	if votes := d.Upvotes + d.Downvotes; votes > 0 {
		parts = append(parts, fmt.Sprintf("%d%% positive of %d votes", d.Upvotes*100/votes, votes))
	}

	head := fmt.Sprintf("Score %d/100", s.total)
	if len(parts) == 0 {
		return head
	}
	return head + ": " + strings.Join(parts, ", ")
}
