package harvest

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/utils"
)

const (
	// Reviews at or above this rating are positive; anything rated below
	// (but above the unknown sentinel 0) is negative.
	positiveRatingThreshold = 4.0

	// Prefix length of normalized text used in the review dedup key.
	dedupTextPrefix = 100

	// Minimum normalized text length considered non-trivial.
	minReviewTextLen = 5
)

var (
	ratingTextRe  = regexp.MustCompile(`([1-5](?:[.,]\d+)?)`)
	classDigitRe  = regexp.MustCompile(`(?:^|[_\- ])([1-5])(?:$|[_\- ])`)
	counterDigits = regexp.MustCompile(`\d+`)
)

// ReviewPage is the result of extracting one detail page's reviews section.
type ReviewPage struct {
	Reviews []models.ReviewRecord
	// PageCounter is the review total advertised by the page-level counter
	// widget, or -1 when no counter was found.
	PageCounter int
}

// ReviewExtractor extracts and classifies reviews from a detail page.
type ReviewExtractor struct {
	sel    config.Selectors
	loader *Loader
	logger *utils.Logger
	now    func() time.Time

	largeReviewCount   int
	maxScrollItersLong int
}

// NewReviewExtractor creates a ReviewExtractor with a wall-clock source.
func NewReviewExtractor(cfg *config.Config, sel config.Selectors, loader *Loader, logger *utils.Logger) *ReviewExtractor {
	return &ReviewExtractor{
		sel:                sel,
		loader:             loader,
		logger:             logger,
		now:                time.Now,
		largeReviewCount:   cfg.LargeReviewCount,
		maxScrollItersLong: cfg.MaxScrollItersLong,
	}
}

// Extract navigates to the reviews section when one is available, converges
// the reviews pane via the scroll loader so lazily loaded reviews are
// revealed, and parses the result. Extraction misses are never errors; the
// returned error only reflects a total inability to read the page.
func (e *ReviewExtractor) Extract(ctx context.Context, surf browser.Surface, params LoaderParams) (ReviewPage, error) {
	e.openReviewsTab(ctx, surf)

	doc, err := browser.Document(ctx, surf)
	if err != nil {
		return ReviewPage{PageCounter: -1}, fmt.Errorf("reviews: read page: %w", err)
	}

	counter := e.pageCounter(doc)
	if counter > e.largeReviewCount && e.maxScrollItersLong > params.MaxIterations {
		params.MaxIterations = e.maxScrollItersLong
	}

	measure := e.loader.SurfaceMeasure(ctx, surf, e.sel.ReviewNodes)
	scroll := e.loader.SurfaceScroll(ctx, surf, e.sel.ScrollContainers, e.sel.ReviewNodes, params.StepPixels)
	e.loader.Load(ctx, measure, scroll, params)

	doc, err = browser.Document(ctx, surf)
	if err != nil {
		return ReviewPage{PageCounter: counter}, fmt.Errorf("reviews: re-read page: %w", err)
	}

	return e.Parse(doc), nil
}

// Parse extracts reviews from an already-rendered document. Exposed
// separately so it is testable without a browser.
func (e *ReviewExtractor) Parse(doc *goquery.Document) ReviewPage {
	page := ReviewPage{PageCounter: e.pageCounter(doc)}
	seen := make(map[string]struct{})

	e.eachReviewNode(doc, func(node *goquery.Selection) {
		review := e.parseNode(node)

		if review.Rating == 0 && len(normalizeText(review.Text)) < minReviewTextLen {
			return
		}

		key := dedupKey(review)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		page.Reviews = append(page.Reviews, review)
	})

	return page
}

func (e *ReviewExtractor) eachReviewNode(doc *goquery.Document, fn func(*goquery.Selection)) {
	for _, sel := range e.sel.ReviewNodes {
		nodes := doc.Find(sel)
		if nodes.Length() == 0 {
			continue
		}
		nodes.Each(func(_ int, node *goquery.Selection) { fn(node) })
		return
	}
}

func (e *ReviewExtractor) parseNode(node *goquery.Selection) models.ReviewRecord {
	review := models.ReviewRecord{
		Rating: e.resolveRating(node),
		Author: firstText(node, e.sel.ReviewAuthor),
		Text:   e.reviewText(node),
	}

	if raw := firstTextOrContent(node, e.sel.ReviewDate); raw != "" {
		review.ReviewDate = ParseReviewDate(raw, e.now())
	}

	for _, sel := range e.sel.ReviewResponse {
		response := node.Find(sel).First()
		if response.Length() == 0 {
			continue
		}
		review.HasResponse = true
		if raw := firstTextOrContent(response, e.sel.ResponseDate); raw != "" {
			review.ResponseDate = ParseReviewDate(raw, e.now())
		} else if raw := firstTextOrContent(node, e.sel.ResponseDate); raw != "" {
			review.ResponseDate = ParseReviewDate(raw, e.now())
		}
		break
	}

	return review
}

// resolveRating walks the ordered fallback chain: explicit numeric
// attribute, digit in a rating-ish class name, selector-scoped text, filled
// star glyph count, and finally a regex scan over the node's flattened text.
// The first in-range value wins; chain exhaustion yields 0 (unknown).
func (e *ReviewExtractor) resolveRating(node *goquery.Selection) float64 {
	if v, ok := e.ratingFromAttrs(node); ok {
		return v
	}
	if v, ok := e.ratingFromClass(node); ok {
		return v
	}
	if v, ok := e.ratingFromText(node); ok {
		return v
	}
	if v, ok := e.ratingFromGlyphs(node); ok {
		return v
	}
	if v, ok := parseRatingValue(node.Text()); ok {
		return v
	}
	return 0
}

func (e *ReviewExtractor) ratingFromAttrs(node *goquery.Selection) (float64, bool) {
	for _, attr := range e.sel.RatingValueAttrs {
		if raw, ok := node.Attr(attr); ok {
			if v, ok := parseRatingValue(raw); ok {
				return v, true
			}
		}
		if raw, ok := node.Find("[itemprop='ratingValue']").Attr(attr); ok {
			if v, ok := parseRatingValue(raw); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func (e *ReviewExtractor) ratingFromClass(node *goquery.Selection) (float64, bool) {
	var found float64
	var ok bool
	probe := func(s *goquery.Selection) bool {
		class, has := s.Attr("class")
		if !has {
			return true
		}
		lower := strings.ToLower(class)
		for _, marker := range e.sel.RatingClassMarkers {
			if !strings.Contains(lower, marker) {
				continue
			}
			if m := classDigitRe.FindStringSubmatch(lower); m != nil {
				if v, err := strconv.Atoi(m[1]); err == nil {
					found, ok = float64(v), true
					return false
				}
			}
		}
		return true
	}

	if !probe(node) {
		return found, ok
	}
	node.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		return probe(s)
	})
	return found, ok
}

func (e *ReviewExtractor) ratingFromText(node *goquery.Selection) (float64, bool) {
	for _, sel := range e.sel.RatingText {
		text := strings.TrimSpace(node.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if v, ok := parseRatingValue(text); ok {
			return v, true
		}
	}
	return 0, false
}

func (e *ReviewExtractor) ratingFromGlyphs(node *goquery.Selection) (float64, bool) {
	for _, sel := range e.sel.StarGlyphs {
		n := node.Find(sel).Length()
		if n >= 1 && n <= 5 {
			return float64(n), true
		}
	}
	return 0, false
}

// reviewText tries the configured text selectors, then falls back to the
// longest qualifying text block in the subtree, rejecting boilerplate.
func (e *ReviewExtractor) reviewText(node *goquery.Selection) string {
	if text := firstText(node, e.sel.ReviewText); text != "" {
		return text
	}

	var longest string
	node.Find("span, p, div").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		text := normalizeText(s.Text())
		if len(text) <= len(longest) || len(text) < minReviewTextLen {
			return
		}
		if e.isBoilerplate(text) {
			return
		}
		longest = text
	})
	return longest
}

func (e *ReviewExtractor) isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	if _, ok := parseRatingValue(lower); ok && len(lower) <= 4 {
		return true
	}
	for _, marker := range e.sel.BoilerplateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// pageCounter reads the page-level review counter widget, returning -1 when
// none is present. The last matching counter wins (tab counters render the
// reviews tab last).
func (e *ReviewExtractor) pageCounter(doc *goquery.Document) int {
	for _, sel := range e.sel.ReviewCounter {
		matches := doc.Find(sel)
		if matches.Length() == 0 {
			continue
		}
		raw := strings.TrimSpace(matches.Last().Text())
		if digits := counterDigits.FindString(strings.ReplaceAll(raw, " ", "")); digits != "" {
			if n, err := strconv.Atoi(digits); err == nil {
				return n
			}
		}
	}
	return -1
}

// openReviewsTab clicks the reviews tab or link when one exists. Failure is
// no signal: some layouts render reviews inline.
func (e *ReviewExtractor) openReviewsTab(ctx context.Context, surf browser.Surface) {
	for _, sel := range e.sel.ReviewsTab {
		if err := surf.Click(ctx, sel); err == nil {
			utils.Sleep(ctx, 500*time.Millisecond)
			return
		}
	}
}

// ClassifyReviews partitions reviews into positive and negative buckets.
// Unknown ratings (0) are excluded from both but remain in the total count.
func ClassifyReviews(reviews []models.ReviewRecord) (positive, negative int) {
	for _, r := range reviews {
		switch {
		case r.Rating >= positiveRatingThreshold:
			positive++
		case r.Rating > 0:
			negative++
		}
	}
	return positive, negative
}

// CountResponses tallies reviews with and without a business response.
func CountResponses(reviews []models.ReviewRecord) (answered, unanswered int) {
	for _, r := range reviews {
		if r.HasResponse {
			answered++
		} else {
			unanswered++
		}
	}
	return answered, unanswered
}

// AvgResponseDays computes the mean response time in fractional days over
// reviews where both dates are present and the response follows the review.
// Cards with no computable sample report nil, not zero.
func AvgResponseDays(reviews []models.ReviewRecord) *float64 {
	var total float64
	var count int
	for _, r := range reviews {
		if r.ReviewDate == nil || r.ResponseDate == nil {
			continue
		}
		if !r.ResponseDate.After(*r.ReviewDate) {
			continue
		}
		total += r.ResponseDate.Sub(*r.ReviewDate).Hours() / 24
		count++
	}
	if count == 0 {
		return nil
	}
	avg := total / float64(count)
	return &avg
}

func dedupKey(r models.ReviewRecord) string {
	text := normalizeText(r.Text)
	if len(text) > dedupTextPrefix {
		text = text[:dedupTextPrefix]
	}
	return fmt.Sprintf("%d|%s", int(math.Round(r.Rating)), strings.ToLower(text))
}

// parseRatingValue extracts a rating in [1,5] from raw text, accepting both
// dot and comma decimal separators.
func parseRatingValue(raw string) (float64, bool) {
	m := ratingTextRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v < 1 || v > 5 {
		return 0, false
	}
	return v, true
}

// firstText returns the first non-empty normalized text among the selector
// chain, scoped to node.
func firstText(node *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := normalizeText(node.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstTextOrContent is firstText but also checks the content attribute,
// covering <meta itemprop=...> style carriers.
func firstTextOrContent(node *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		match := node.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		if text := normalizeText(match.Text()); text != "" {
			return text
		}
		if content, ok := match.Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
	}
	return ""
}

// normalizeText trims and collapses internal whitespace.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), unicode.IsSpace)
	return strings.Join(fields, " ")
}
