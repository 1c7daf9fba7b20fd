package model

// ScoreBreakdown holds the four independently bounded sub-scores.
type ScoreBreakdown struct {
	ValueProposition int `json:"value_proposition"`
	Authenticity     int `json:"authenticity"`
	Urgency          int `json:"urgency"`
	SocialProof      int `json:"social_proof"`
}

// ScoreResult is the transient output of quality scoring. It is recomputed
// on every request and never persisted.
type ScoreResult struct {
	DealID     string         `json:"deal_id"`
	TotalScore int            `json:"total_score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	Badges     []string       `json:"badges"`
	Reasoning  string         `json:"reasoning"`
	Fallback   bool           `json:"fallback,omitempty"`
}
