// Package scorer computes the 0-100 deal quality score: a weighted blend of
// value proposition, authenticity, urgency and social proof, plus badges and
// a short reasoning line. Scores are recomputed on every call and never
// persisted.
//
// Value proposition (0-100) is the sum of:
//
//	discount     >=80% 40 | 71-79% 35 | >=60% 35 | >=40% 28 | >=25% 20 | >=15% 12 | else 0.8/pt
//	             discounts above 70% on items under ₹1000 are scaled by 0.6
//	history      <2 points 20 | at/below all-time low 40
//	             below median by >=30% 35 | >=15% 28 | >=5% 22 | else 18
//	             above median 15 - 50*overshoot, floor 2
//	savings      ₹50k 20 | ₹20k 15 | ₹10k 12 | ₹5k 8 | ₹2k 5 | ₹1k 3
//
// Authenticity (0-100) is merchant trust (0-40, 20 with no merchant
// history) + verification (verified 30, accessible 20, failed 5, never 10)
// + completeness (5 each for URL, image, description of 50+ chars), minus
// red flags (auto-flagged 10, no URL 5, discount above 85% 5), floored at 0.
//
// Urgency (0-100) is freshness (40 at 2h stepping down to 10 at one week,
// then -1 per day) + trend (relative least-squares slope over the last
// TrendWindow prices: <=-5% 30, <=-2% 25, falling 20, flat or <3 points 15,
// rising <2% 10, else 5) + expiry (none 15, expired 0, 6h 30, 24h 25,
// 72h 20, one week 12, later 8).
//
// Social proof (0-100) is votes (ratio*50 scaled 1.2/1.1/1.0/0.7 by volume
// at 100/50/10 votes, capped at 50, flat 25 with no votes) + comments
// (5 each, cap 30) + views (5*log10(views+1), cap 20).
package scorer
