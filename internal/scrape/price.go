package scrape

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe    = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	discountRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
)

// ParsePrice extracts a positive whole-rupee amount from on-page text such
// as "₹22,990.00" or "Rs. 1,299". Currency symbols and thousands separators
// are ignored; fractions round to the nearest unit.
func ParsePrice(s string) (int64, bool) {
	m := priceRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, false
	}
	p := int64(math.Round(v))
	if p <= 0 {
		return 0, false
	}
	return p, true
}

// ParseDiscount extracts a 0-100 percentage from text like "(27% off)".
func ParseDiscount(s string) (int, bool) {
	m := discountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || v > 100 {
		return 0, false
	}
	return int(math.Round(v)), true
}
