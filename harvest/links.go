package harvest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/utils"
)

// Ancestor levels the secondary pass climbs when a card holds no detail
// anchor in its own subtree.
const ancestorSearchDepth = 5

// Coverage below this share of counted card elements triggers the secondary
// per-card link search.
const linkCoverageRatio = 0.8

// LinkCollector extracts the deduplicated set of detail-page URLs from a
// loaded listing page.
type LinkCollector struct {
	sel    config.Selectors
	logger *utils.Logger
}

// NewLinkCollector creates a LinkCollector using the configured marker lists.
func NewLinkCollector(sel config.Selectors, logger *utils.Logger) *LinkCollector {
	return &LinkCollector{sel: sel, logger: logger}
}

// Collect returns card links keyed by canonical URL. The primary pass scans
// every anchor on the page against the detail-path markers; when that covers
// fewer than 80% of the counted card elements, a secondary per-card pass
// searches each card's subtree and then its ancestors. Anchors tied to a
// counted card are trusted without a path marker (sites restyle detail URLs;
// the card element itself is the signal), subject only to the exclusion list
// and never pointing back at the listing itself.
func (c *LinkCollector) Collect(doc *goquery.Document, pageURL string, pageIndex int) map[string]models.CardLink {
	base, _ := url.Parse(pageURL)
	links := make(map[string]models.CardLink)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		c.addIfDetail(links, a, base, pageIndex)
	})

	cardCount := c.countCards(doc)
	if float64(len(links)) >= linkCoverageRatio*float64(cardCount) {
		return links
	}

	c.logger.Debug("[links] coverage %d/%d below threshold, running per-card search",
		len(links), cardCount)

	self, _ := CanonicalURL(pageURL, nil)
	c.eachCard(doc, func(card *goquery.Selection) {
		// The anchor may be the card root itself.
		if goquery.NodeName(card) == "a" {
			c.addCardAnchor(links, card, base, pageIndex, self)
		}
		card.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			c.addCardAnchor(links, a, base, pageIndex, self)
		})

		cur := card
		for depth := 0; depth < ancestorSearchDepth; depth++ {
			cur = cur.Parent()
			if cur.Length() == 0 {
				break
			}
			if goquery.NodeName(cur) == "a" {
				c.addCardAnchor(links, cur, base, pageIndex, self)
			}
		}
	})

	return links
}

func (c *LinkCollector) addIfDetail(links map[string]models.CardLink, a *goquery.Selection, base *url.URL, pageIndex int) {
	href, ok := a.Attr("href")
	if !ok || !c.isDetailHref(href) {
		return
	}
	canonical, ok := CanonicalURL(href, base)
	if !ok {
		return
	}
	if _, exists := links[canonical]; exists {
		return
	}
	links[canonical] = models.CardLink{CanonicalURL: canonical, DiscoveredOnPage: pageIndex}
}

// addCardAnchor is the relaxed filter of the secondary pass: the anchor
// belongs to a counted card element, so the path-marker requirement is
// dropped. Excluded subpaths and self-links still never qualify.
func (c *LinkCollector) addCardAnchor(links map[string]models.CardLink, a *goquery.Selection, base *url.URL, pageIndex int, self string) {
	href, ok := a.Attr("href")
	if !ok {
		return
	}
	if c.isExcludedHref(href) {
		return
	}
	canonical, ok := CanonicalURL(href, base)
	if !ok || canonical == self {
		return
	}
	if _, exists := links[canonical]; exists {
		return
	}
	links[canonical] = models.CardLink{CanonicalURL: canonical, DiscoveredOnPage: pageIndex}
}

func (c *LinkCollector) isExcludedHref(href string) bool {
	for _, excl := range c.sel.DetailPathExcludes {
		if strings.Contains(href, excl) {
			return true
		}
	}
	return false
}

func (c *LinkCollector) isDetailHref(href string) bool {
	if c.isExcludedHref(href) {
		return false
	}
	for _, marker := range c.sel.DetailPathMarkers {
		if strings.Contains(href, marker) {
			return true
		}
	}
	return false
}

// countCards counts elements matching the configured card-container
// selectors, using the first selector that matches anything.
func (c *LinkCollector) countCards(doc *goquery.Document) int {
	for _, sel := range c.sel.CardContainers {
		if n := doc.Find(sel).Length(); n > 0 {
			return n
		}
	}
	return 0
}

func (c *LinkCollector) eachCard(doc *goquery.Document, fn func(*goquery.Selection)) {
	for _, sel := range c.sel.CardContainers {
		cards := doc.Find(sel)
		if cards.Length() == 0 {
			continue
		}
		cards.Each(func(_ int, card *goquery.Selection) { fn(card) })
		return
	}
}

// CanonicalURL resolves href against base and strips query string and
// fragment. Scheme and host are lowercased; the path is preserved as-is.
func CanonicalURL(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Host == "" || parsed.Path == "" {
		return "", false
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), true
}
