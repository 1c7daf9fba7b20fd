package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/model"
)

// CardSelectors locate fields inside one listing card. A field selector may
// match several nodes; their trimmed texts are joined with a space.
type CardSelectors struct {
	Container     string
	Title         string
	Price         string
	OriginalPrice string
	Discount      string
	Link          string
	Image         string
	// IDAttr names an attribute on the container holding the product ID.
	IDAttr string
}

// ProductSelectors locate fields on a product detail page. Marker must match
// for the page to be treated as a product page.
type ProductSelectors struct {
	Marker        string
	Title         string
	Price         string
	OriginalPrice string
	Discount      string
	Image         string
	Description   string
}

// Profile describes how to scrape one merchant.
type Profile struct {
	Merchant    string
	Slug        string
	Hosts       []string
	BaseURL     string
	ListingURLs []string
	Card        CardSelectors
	Product     ProductSelectors

	// ExtractID derives the merchant product ID from a product URL. It may
	// return "" when the URL carries no ID.
	ExtractID func(u *url.URL) string
	// CanonicalURL rebuilds a stable product URL from an ID. Optional.
	CanonicalURL func(id string) string
	// RequireListingID drops listing cards without an extractable ID.
	RequireListingID bool
}

// SupportsHost reports whether host belongs to the merchant.
func (p *Profile) SupportsHost(host string) bool {
	return matchHost(host, p.Hosts)
}

func matchHost(host string, hosts []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ExtractListing parses listing HTML into candidates. Cards missing a
// required field are dropped. A page with no matching cards yields nothing.
func (p *Profile) ExtractListing(html string) []model.CandidateDeal {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		zap.L().Warn("scrape: parse listing html", zap.String("merchant", p.Merchant), zap.Error(err))
		return nil
	}

	cards := doc.Find(p.Card.Container)
	if cards.Length() == 0 {
		zap.L().Warn("scrape: no product cards matched",
			zap.String("merchant", p.Merchant),
			zap.String("selector", p.Card.Container),
		)
		return nil
	}

	var out []model.CandidateDeal
	var dropped int
	cards.Each(func(_ int, s *goquery.Selection) {
		c, ok := p.extractCard(s)
		if !ok {
			dropped++
			return
		}
		out = append(out, c)
	})

	if dropped > 0 {
		zap.L().Debug("scrape: dropped incomplete cards",
			zap.String("merchant", p.Merchant),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(out)),
		)
	}
	return out
}

func (p *Profile) extractCard(s *goquery.Selection) (model.CandidateDeal, bool) {
	title := joinText(s.Find(p.Card.Title))
	price, ok := ParsePrice(firstText(s, p.Card.Price))
	if title == "" || !ok {
		return model.CandidateDeal{}, false
	}

	href, _ := s.Find(p.Card.Link).First().Attr("href")
	u := p.resolve(href)
	if u == nil {
		return model.CandidateDeal{}, false
	}

	id := ""
	if p.Card.IDAttr != "" {
		id, _ = s.Attr(p.Card.IDAttr)
		id = strings.TrimSpace(id)
	}
	if id == "" && p.ExtractID != nil {
		id = p.ExtractID(u)
	}
	if id == "" && p.RequireListingID {
		return model.CandidateDeal{}, false
	}

	c := model.CandidateDeal{
		Title:             title,
		Price:             price,
		ProductURL:        p.productURL(u, id),
		Merchant:          p.Merchant,
		ExternalProductID: model.String(id),
		ImageURL:          model.String(imageSrc(s.Find(p.Card.Image).First())),
	}
	p.applyPricing(&c, firstText(s, p.Card.OriginalPrice), firstText(s, p.Card.Discount))
	return c, true
}

// ExtractProduct parses a product page. It returns nil when the marker,
// title or price is missing.
func (p *Profile) ExtractProduct(html, rawURL string) *model.CandidateDeal {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	if doc.Find(p.Product.Marker).Length() == 0 {
		return nil
	}

	title := joinText(doc.Find(p.Product.Title).First())
	price, ok := ParsePrice(firstText(doc.Selection, p.Product.Price))
	if title == "" || !ok {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	id := ""
	if p.ExtractID != nil {
		id = p.ExtractID(u)
	}

	c := &model.CandidateDeal{
		Title:             title,
		Price:             price,
		ProductURL:        p.productURL(u, id),
		Merchant:          p.Merchant,
		ExternalProductID: model.String(id),
		ImageURL:          model.String(imageSrc(doc.Find(p.Product.Image).First())),
	}
	if p.Product.Description != "" {
		c.Description = model.String(joinText(doc.Find(p.Product.Description)))
	}
	p.applyPricing(c, firstText(doc.Selection, p.Product.OriginalPrice), firstText(doc.Selection, p.Product.Discount))
	return c
}

// applyPricing sets original price and discount. An on-page percentage wins;
// otherwise the discount is computed from the price pair.
func (p *Profile) applyPricing(c *model.CandidateDeal, originalText, discountText string) {
	if orig, ok := ParsePrice(originalText); ok && orig > c.Price {
		c.OriginalPrice = model.Int64(orig)
	}
	if d, ok := ParseDiscount(discountText); ok {
		c.DiscountPercentage = model.Int(d)
		return
	}
	if c.OriginalPrice != nil {
		c.DiscountPercentage = model.Int(model.DiscountPercent(c.Price, *c.OriginalPrice))
	}
}

func (p *Profile) resolve(href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") {
		return nil
	}
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return base.ResolveReference(ref)
}

func (p *Profile) productURL(u *url.URL, id string) string {
	if id != "" && p.CanonicalURL != nil {
		return p.CanonicalURL(id)
	}
	clean := *u
	clean.Fragment = ""
	return clean.String()
}

func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func joinText(s *goquery.Selection) string {
	var parts []string
	s.Each(func(_ int, n *goquery.Selection) {
		if t := strings.Join(strings.Fields(n.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

func imageSrc(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-old-hires"} {
		if v, ok := s.Attr(attr); ok && strings.HasPrefix(v, "http") {
			return v
		}
	}
	return ""
}
