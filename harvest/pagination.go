package harvest

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizharvest/config"
	"bizharvest/utils"
)

var pagePathRe = regexp.MustCompile(`/page/(\d+)`)

// Pagination locates the next listing page among the anchors of the current
// one, or signals that pagination is exhausted.
type Pagination struct {
	sel    config.Selectors
	logger *utils.Logger
}

// NewPagination creates a Pagination discoverer.
func NewPagination(sel config.Selectors, logger *utils.Logger) *Pagination {
	return &Pagination{sel: sel, logger: logger}
}

// Next returns the absolute URL of the next listing page, trying in order:
// explicit next-page labels, pagination class markers, and page-number
// encoding (link text, /page/N path or page=N query). A discovered URL
// already present in visitedPages means the site is looping; that terminates
// pagination instead of following the cycle.
func (p *Pagination) Next(doc *goquery.Document, pageURL string, currentPageIndex int, visitedPages *utils.URLSet) (string, bool) {
	base, _ := url.Parse(pageURL)

	heuristics := []func(*goquery.Document, *url.URL, int) string{
		p.byLabel,
		p.byClassMarker,
		p.byPageNumber,
	}

	for _, h := range heuristics {
		next := h(doc, base, currentPageIndex)
		if next == "" {
			continue
		}
		if visitedPages != nil && visitedPages.Contains(next) {
			p.logger.Warn("[pagination] next page %s already visited, treating as terminal", next)
			return "", false
		}
		return next, true
	}

	return "", false
}

// byLabel matches anchors whose aria-label or visible text carries an
// explicit next-page label (localized variants included).
func (p *Pagination) byLabel(doc *goquery.Document, base *url.URL, _ int) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label, _ := a.Attr("aria-label")
		text := strings.TrimSpace(a.Text())
		for _, want := range p.sel.NextPageLabels {
			if equalsFold(label, want) || equalsFold(text, want) {
				found = resolveHref(a, base)
				return found == ""
			}
		}
		return true
	})
	return found
}

// byClassMarker matches anchors whose class name carries a pagination/next
// marker.
func (p *Pagination) byClassMarker(doc *goquery.Document, base *url.URL, _ int) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		class, _ := a.Attr("class")
		lower := strings.ToLower(class)
		for _, marker := range p.sel.NextPageClassMarkers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				found = resolveHref(a, base)
				return found == ""
			}
		}
		return true
	})
	return found
}

// byPageNumber matches anchors that encode currentPageIndex+1 in their link
// text, /page/N path segment, or page=N query parameter.
func (p *Pagination) byPageNumber(doc *goquery.Document, base *url.URL, currentPageIndex int) string {
	wantIndex := currentPageIndex + 1
	want := strconv.Itoa(wantIndex)

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) == want {
			found = resolveHref(a, base)
			return found == ""
		}

		href, _ := a.Attr("href")
		if m := pagePathRe.FindStringSubmatch(href); m != nil && m[1] == want {
			found = resolveHref(a, base)
			return found == ""
		}
		if resolved := resolveHref(a, base); resolved != "" {
			if u, err := url.Parse(resolved); err == nil && u.Query().Get("page") == want {
				found = resolved
				return false
			}
		}
		return true
	})
	return found
}

func resolveHref(a *goquery.Selection, base *url.URL) string {
	href, ok := a.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

func equalsFold(got, want string) bool {
	got = strings.TrimSpace(strings.ToLower(got))
	return got != "" && got == strings.ToLower(want)
}

// bottomScrollScript nudges the page to its bottom so late-rendered
// pagination controls appear before the live re-query.
func bottomScrollScript() string {
	return fmt.Sprintf(`window.scrollTo(0, %s)`,
		"document.body ? document.body.scrollHeight : 0")
}
