package dedup

// Outcome is the price-policy decision for a checked candidate.
type Outcome string

const (
	OutcomeNew     Outcome = "new"
	OutcomeReplace Outcome = "replace"
	OutcomeReject  Outcome = "reject"
)

// Decide applies the price policy: a duplicate with a strictly lower price
// replaces the matched deal's price, any other duplicate is rejected.
func Decide(r Result, price int64) Outcome {
	if !r.IsDuplicate {
		return OutcomeNew
	}
	if price < r.MatchedDealPrice {
		return OutcomeReplace
	}
	return OutcomeReject
}
