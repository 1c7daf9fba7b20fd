package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dealpulse/ingest/internal/model"
)

func TestVoteScore(t *testing.T) {
	tests := []struct {
		name     string
		up, down int
		want     float64
	}{
		{"no votes", 0, 0, 25},
		{"high volume capped", 90, 10, 50},
		{"fifty votes", 40, 10, 44},
		{"ten votes", 8, 2, 40},
		{"few votes scaled down", 4, 1, 28},
		{"all negative", 0, 12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, voteScore(tt.up, tt.down), 0.001)
		})
	}
}

func TestCommentAndViewScore(t *testing.T) {
	assert.InDelta(t, 0, commentScore(0), 0.001)
	assert.InDelta(t, 15, commentScore(3), 0.001)
	assert.InDelta(t, 30, commentScore(10), 0.001)

	assert.InDelta(t, 0, viewScore(0), 0.001)
	assert.InDelta(t, 10, viewScore(99), 0.001)
	assert.InDelta(t, 20, viewScore(9999), 0.001)
	assert.InDelta(t, 20, viewScore(1_000_000), 0.001)
}

func TestSocialProof(t *testing.T) {
	assert.Equal(t, 25, SocialProof(model.Deal{}))
	assert.Equal(t, 100, SocialProof(model.Deal{Upvotes: 500, Downvotes: 5, CommentCount: 40, ViewCount: 50000}))
	assert.Equal(t, 65, SocialProof(model.Deal{Upvotes: 8, Downvotes: 2, CommentCount: 3, ViewCount: 99}))
}
