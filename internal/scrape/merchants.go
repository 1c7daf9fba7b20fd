package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	asinRe      = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d)/([A-Z0-9]{10})`)
	myntraIDRe  = regexp.MustCompile(`/(\d{5,})/buy`)
	flipkartPID = regexp.MustCompile(`^[A-Z0-9]{16}$`)
)

// AmazonProfile scrapes amazon.in deal listings.
func AmazonProfile() Profile {
	return Profile{
		Merchant: "Amazon",
		Slug:     "amazon",
		Hosts:    []string{"amazon.in", "amzn.in"},
		BaseURL:  "https://www.amazon.in",
		ListingURLs: []string{
			"https://www.amazon.in/s?k=deals+of+the+day&rh=p_n_deal_type%3A26921224031",
			"https://www.amazon.in/s?k=lightning+deals&rh=p_n_deal_type%3A26921225031",
		},
		Card: CardSelectors{
			Container:     `div.s-result-item[data-asin]:not([data-asin=""])`,
			Title:         "h2 span",
			Price:         "span.a-price:not(.a-text-price) span.a-offscreen",
			OriginalPrice: "span.a-price.a-text-price span.a-offscreen",
			Discount:      "span.savingsPercentage",
			Link:          "h2 a, a.a-link-normal.s-no-outline",
			Image:         "img.s-image",
			IDAttr:        "data-asin",
		},
		Product: ProductSelectors{
			Marker:        "#productTitle",
			Title:         "#productTitle",
			Price:         "#corePriceDisplay_desktop_feature_div span.a-price-whole, span.a-price span.a-offscreen",
			OriginalPrice: "span.a-price.a-text-price span.a-offscreen",
			Discount:      "span.savingsPercentage",
			Image:         "#landingImage",
			Description:   "#feature-bullets li span",
		},
		ExtractID: func(u *url.URL) string {
			if m := asinRe.FindStringSubmatch(u.Path); m != nil {
				return m[1]
			}
			return ""
		},
		CanonicalURL: func(id string) string {
			return "https://www.amazon.in/dp/" + id
		},
		RequireListingID: true,
	}
}

// FlipkartProfile scrapes flipkart.com offer listings.
func FlipkartProfile() Profile {
	return Profile{
		Merchant: "Flipkart",
		Slug:     "flipkart",
		Hosts:    []string{"flipkart.com", "dl.flipkart.com"},
		BaseURL:  "https://www.flipkart.com",
		ListingURLs: []string{
			"https://www.flipkart.com/offers-store",
			"https://www.flipkart.com/search?q=deals+of+the+day",
		},
		Card: CardSelectors{
			Container:     "div[data-id]",
			Title:         "div.KzDlHZ, a.wjcEIp, a.WKTcLC",
			Price:         "div.Nx9bqj",
			OriginalPrice: "div.yRaY8j",
			Discount:      "div.UkUFwK span",
			Link:          "a[href*='/p/']",
			Image:         "img",
			IDAttr:        "data-id",
		},
		Product: ProductSelectors{
			Marker:        "span.VU-ZEz",
			Title:         "span.VU-ZEz",
			Price:         "div.Nx9bqj",
			OriginalPrice: "div.yRaY8j",
			Discount:      "div.UkUFwK span",
			Image:         "img.DByuf4",
			Description:   "div._4gvKMe",
		},
		ExtractID: func(u *url.URL) string {
			pid := strings.ToUpper(u.Query().Get("pid"))
			if flipkartPID.MatchString(pid) {
				return pid
			}
			return ""
		},
		RequireListingID: true,
	}
}

// MyntraProfile scrapes myntra.com deal listings. Card titles combine the
// brand and product name.
func MyntraProfile() Profile {
	return Profile{
		Merchant: "Myntra",
		Slug:     "myntra",
		Hosts:    []string{"myntra.com"},
		BaseURL:  "https://www.myntra.com",
		ListingURLs: []string{
			"https://www.myntra.com/deals-of-the-day",
		},
		Card: CardSelectors{
			Container:     "li.product-base",
			Title:         "h3.product-brand, h4.product-product",
			Price:         "span.product-discountedPrice, div.product-price > span",
			OriginalPrice: "span.product-strike",
			Discount:      "span.product-discountPercentage",
			Link:          "a[href]",
			Image:         "img.img-responsive",
		},
		Product: ProductSelectors{
			Marker:        "h1.pdp-title",
			Title:         "h1.pdp-title, h1.pdp-name",
			Price:         "span.pdp-price strong",
			OriginalPrice: "span.pdp-mrp s",
			Discount:      "span.pdp-discount",
			Image:         "div.image-grid-image",
			Description:   "p.pdp-product-description-content",
		},
		ExtractID: func(u *url.URL) string {
			if m := myntraIDRe.FindStringSubmatch(u.Path); m != nil {
				return m[1]
			}
			return ""
		},
		CanonicalURL: func(id string) string {
			return "https://www.myntra.com/" + id
		},
	}
}

// DefaultProfiles returns every built-in merchant profile.
func DefaultProfiles() []Profile {
	return []Profile{AmazonProfile(), FlipkartProfile(), MyntraProfile()}
}
