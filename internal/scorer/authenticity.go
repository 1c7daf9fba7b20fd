package scorer

import "github.com/dealpulse/ingest/internal/model"

// merchantTrustScore is 0-40 from the merchant's recent deals: half upvote
// ratio, 30% verified fraction, 20% non-expired fraction.
func merchantTrustScore(s model.MerchantStats) float64 {
	if s.DealCount <= 0 {
		return 20
	}
	upvoteRatio := 0.5
	if votes := s.Upvotes + s.Downvotes; votes > 0 {
		upvoteRatio = float64(s.Upvotes) / float64(votes)
	}
	n := float64(s.DealCount)
	verified := float64(s.Verified) / n
	expired := float64(s.Expired) / n
	return 40 * (0.5*upvoteRatio + 0.3*verified + 0.2*(1-expired))
}

func verificationScore(d model.Deal) float64 {
	switch {
	case d.Verified || d.VerificationStatus == model.VerificationVerified:
		return 30
	case d.VerificationStatus == model.VerificationFailed:
		return 5
	case d.LastVerifiedAt != nil:
		if d.URLAccessible != nil && *d.URLAccessible {
			return 20
		}
		return 5
	default:
		return 10
	}
}

func completenessScore(d model.Deal) float64 {
	var s float64
	if d.ProductURL != "" {
		s += 5
	}
	if d.ImageURL != nil && *d.ImageURL != "" {
		s += 5
	}
	if d.Description != nil && len([]rune(*d.Description)) >= 50 {
		s += 5
	}
	return s
}

func redFlagPenalty(d model.Deal) float64 {
	var p float64
	if d.AutoFlagged {
		p += 10
	}
	if d.ProductURL == "" {
		p += 5
	}
	if d.Discount() > 85 {
		p += 5
	}
	return p
}

// Authenticity scores merchant trust, verification state and listing
// completeness, minus red flags, 0-100.
func Authenticity(d model.Deal, stats model.MerchantStats) int {
	s := merchantTrustScore(stats) + verificationScore(d) + completenessScore(d) - redFlagPenalty(d)
	return clamp(s)
}
