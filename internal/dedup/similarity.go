package dedup

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are promotional or filler tokens scraped titles commonly carry.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "for": true,
	"with": true, "in": true, "on": true, "by": true, "to": true,
	"deal": true, "deals": true, "offer": true, "offers": true, "sale": true,
	"limited": true, "time": true, "today": true, "new": true, "latest": true,
	"best": true, "price": true, "off": true, "hot": true, "lowest": true,
	"buy": true, "online": true, "free": true, "shipping": true,
}

// Normalize lower-cases s, strips diacritics and punctuation, drops stop
// words and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Tokens returns the normalized word tokens of s.
func Tokens(s string) []string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// LevenshteinRatio returns 1 - distance/maxLen over runes, in [0,1].
func LevenshteinRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Jaccard returns |A∩B| / |A∪B| over token sets, in [0,1].
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for k := range setA {
		if setB[k] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Similarity returns the combined title similarity as a 0-100 score
// rounded to two decimals.
func Similarity(a, b string, cfg Config) float64 {
	cfg = cfg.withDefaults()
	ta, tb := Tokens(a), Tokens(b)
	na, nb := strings.Join(ta, " "), strings.Join(tb, " ")

	score := cfg.CharWeight*LevenshteinRatio(na, nb) + (1-cfg.CharWeight)*Jaccard(ta, tb)
	score *= 100

	if cfg.VariantGuard && score > cfg.VariantCap && variantMismatch(variantTokens(a), variantTokens(b)) {
		score = cfg.VariantCap
	}
	return math.Round(score*100) / 100
}

// discountPhrase matches on-page discount claims such as "40% off",
// "(Upto 40%)" or "15 off". They carry digits but never name a variant.
var discountPhrase = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:%|percent\b|off\b)`)

// variantTokens returns the digit-bearing tokens of title (model numbers,
// capacities, sizes) once discount phrases are removed.
func variantTokens(title string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range Tokens(discountPhrase.ReplaceAllString(title, " ")) {
		if strings.IndexFunc(t, unicode.IsDigit) >= 0 {
			out[t] = true
		}
	}
	return out
}

// variantMismatch reports a swapped variant: each side has a digit-bearing
// token the other lacks ("xm4" vs "xm5"). A title that only adds such a
// token, like a year suffix, is not a different variant.
func variantMismatch(a, b map[string]bool) bool {
	return hasExtra(a, b) && hasExtra(b, a)
}

func hasExtra(a, b map[string]bool) bool {
	for k := range a {
		if !b[k] {
			return true
		}
	}
	return false
}

func toSet(tokens []string) map[string]bool {
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}
