package scorer

import (
	"math"

	"github.com/dealpulse/ingest/internal/model"
)

func voteScore(up, down int) float64 {
	votes := up + down
	if votes <= 0 {
		return 25
	}
	base := float64(up) / float64(votes) * 50
	var mult float64
	switch {
	case votes >= 100:
		mult = 1.2
	case votes >= 50:
		mult = 1.1
	case votes >= 10:
		mult = 1.0
	default:
		mult = 0.7
	}
	return math.Min(50, base*mult)
}

func commentScore(n int) float64 {
	return math.Min(30, float64(max(n, 0))*5)
}

func viewScore(n int) float64 {
	return math.Min(20, math.Log10(float64(max(n, 0))+1)*5)
}

// SocialProof scores vote quality, comment density and view interest, 0-100.
func SocialProof(d model.Deal) int {
	return clamp(voteScore(d.Upvotes, d.Downvotes) + commentScore(d.CommentCount) + viewScore(d.ViewCount))
}
