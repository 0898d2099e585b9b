package harvest

import (
	"context"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/services"
	"bizharvest/utils"
)

type state int

const (
	stateLoadPage state = iota
	stateScrollConverge
	stateCollectLinks
	stateVisitCards
	stateCheckPagination
	stateDone
)

// requestCounterScript wraps XMLHttpRequest.open so in-flight request counts
// are observable from the page (window.openHTTPs).
const requestCounterScript = `
	(function() {
		if (window.__openHTTPsHooked) return;
		window.__openHTTPsHooked = true;
		var oldOpen = XMLHttpRequest.prototype.open;
		XMLHttpRequest.prototype.open = function(method, url, async, user, pass) {
			if (window.openHTTPs === undefined) {
				window.openHTTPs = 1;
			} else {
				window.openHTTPs++;
			}
			this.addEventListener("readystatechange", function() {
				if (this.readyState == 4) {
					window.openHTTPs--;
				}
			}, false);
			oldOpen.call(this, method, url, async, user, pass);
		};
	})()`

const openRequestsProbe = `typeof window.openHTTPs === "undefined" ? 0 : window.openHTTPs`

// Orchestrator sequences one harvest run: listing page convergence, link
// collection, card visits and pagination, folding each completed card into
// the aggregate as it goes.
type Orchestrator struct {
	cfg     *config.Config
	sel     config.Selectors
	surf    browser.Surface
	loader  *Loader
	links   *LinkCollector
	pager   *Pagination
	reviews *ReviewExtractor
	fields  *FieldExtractor
	logger  *utils.Logger
	retry   *utils.RetryConfig

	// visited owns the process-lifetime guarantee that each card link is
	// visited at most once. One instance per run, never shared.
	visited *utils.URLSet
}

// NewOrchestrator wires the harvest components around one browser surface.
func NewOrchestrator(cfg *config.Config, sel config.Selectors, surf browser.Surface, logger *utils.Logger) *Orchestrator {
	loader := NewLoader(logger)
	return &Orchestrator{
		cfg:     cfg,
		sel:     sel,
		surf:    surf,
		loader:  loader,
		links:   NewLinkCollector(sel, logger),
		pager:   NewPagination(sel, logger),
		reviews: NewReviewExtractor(cfg, sel, loader, logger),
		fields:  NewFieldExtractor(sel),
		logger:  logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		visited: utils.NewURLSet(),
	}
}

// Run executes the harvest state machine starting from startURL. It always
// returns a result: on partial failure the result carries whatever cards
// completed, tagged with StatusPartial. Cancellation is checked at every
// state transition; an in-flight page load is the worst-case latency.
func (o *Orchestrator) Run(ctx context.Context, query models.SearchQuery, startURL string) *models.ParseResult {
	result := &models.ParseResult{
		RunID:  uuid.NewString(),
		Query:  query,
		Status: models.StatusComplete,
	}

	maxRecords := query.MaxRecords
	if maxRecords <= 0 {
		maxRecords = o.cfg.MaxRecords
	}

	agg := services.NewAggregator()
	visitedPages := utils.NewURLSet()

	pageURL := startURL
	pageIndex := 1
	var batch []models.CardLink

	o.logger.Info("[harvest %s] starting run for %q (%s), budget %d records",
		result.RunID[:8], query.Text, query.Location, maxRecords)

	st := stateLoadPage
	for st != stateDone {
		if ctx.Err() != nil {
			o.logger.Warn("[harvest %s] cancelled in state %d", result.RunID[:8], st)
			result.Status = models.StatusPartial
			break
		}

		switch st {
		case stateLoadPage:
			if err := o.navigateListing(ctx, pageURL); err != nil {
				o.logger.Error("[harvest %s] page %d unreachable: %v", result.RunID[:8], pageIndex, err)
				if pageIndex == 1 {
					result.Status = models.StatusPartial
				}
				st = stateDone
				continue
			}
			if !o.clearChallenge(ctx, 0) {
				result.Status = models.StatusPartial
				st = stateDone
				continue
			}
			visitedPages.Add(pageURL)
			o.installRequestCounter(ctx)
			st = stateScrollConverge

		case stateScrollConverge:
			params := LoaderParamsFromConfig(o.cfg)
			measure := o.loader.SurfaceMeasure(ctx, o.surf, o.sel.CardContainers)
			scroll := o.loader.SurfaceScroll(ctx, o.surf, o.sel.ScrollContainers, o.sel.CardContainers, params.StepPixels)
			count, iters := o.loader.Load(ctx, measure, scroll, params)
			o.logger.Info("[harvest %s] page %d converged at %d cards (%d iterations)",
				result.RunID[:8], pageIndex, count, iters)
			o.waitRequestsSettled(ctx)
			st = stateCollectLinks

		case stateCollectLinks:
			doc, err := browser.Document(ctx, o.surf)
			if err != nil {
				o.logger.Error("[harvest %s] cannot read page %d: %v", result.RunID[:8], pageIndex, err)
				result.Status = models.StatusPartial
				st = stateDone
				continue
			}
			set := o.links.Collect(doc, pageURL, pageIndex)
			batch = o.newLinksOrdered(set)
			o.logger.Info("[harvest %s] page %d yielded %d new links", result.RunID[:8], pageIndex, len(batch))

			if len(batch) == 0 && agg.Summary().TotalCards == 0 && pageIndex == 1 {
				if o.noResultsPage(doc) {
					o.logger.Info("[harvest %s] no results for query", result.RunID[:8])
				}
				st = stateDone
				continue
			}
			st = stateVisitCards

		case stateVisitCards:
			budgetReached := false
			for _, link := range batch {
				if ctx.Err() != nil {
					break
				}
				if agg.Summary().TotalCards >= maxRecords {
					budgetReached = true
					break
				}

				card := o.visitCard(ctx, link)
				o.visited.Add(link.CanonicalURL)
				if card == nil {
					continue
				}
				agg.Fold(card)
				result.Cards = append(result.Cards, card)
			}

			if budgetReached || agg.Summary().TotalCards >= maxRecords {
				o.logger.Info("[harvest %s] record budget reached (%d)", result.RunID[:8], maxRecords)
				st = stateDone
				continue
			}
			st = stateCheckPagination

		case stateCheckPagination:
			// Card visits left the browser on a detail page; return to the
			// listing page that produced this batch before probing.
			if err := o.navigateListing(ctx, pageURL); err != nil {
				o.logger.Warn("[harvest %s] cannot return to listing page: %v", result.RunID[:8], err)
				st = stateDone
				continue
			}

			next, ok := o.discoverNext(ctx, pageURL, pageIndex, visitedPages)
			if !ok {
				o.logger.Info("[harvest %s] no further pages after page %d", result.RunID[:8], pageIndex)
				st = stateDone
				continue
			}
			pageURL = next
			pageIndex++
			st = stateLoadPage
		}
	}

	result.Aggregated = agg.Summary()
	o.logger.Info("[harvest %s] finished: %d cards, status %s",
		result.RunID[:8], result.Aggregated.TotalCards, result.Status)
	return result
}

// discoverNext runs the static pagination heuristics and, when they miss,
// repeats them against freshly rendered markup after a light scroll to the
// page bottom.
func (o *Orchestrator) discoverNext(ctx context.Context, pageURL string, pageIndex int, visitedPages *utils.URLSet) (string, bool) {
	doc, err := browser.Document(ctx, o.surf)
	if err == nil {
		if next, ok := o.pager.Next(doc, pageURL, pageIndex, visitedPages); ok {
			return next, true
		}
	}

	if err := o.surf.ExecuteScript(ctx, bottomScrollScript(), nil); err != nil {
		return "", false
	}
	utils.Sleep(ctx, time.Duration(o.cfg.ScrollWaitMs)*time.Millisecond)

	doc, err = browser.Document(ctx, o.surf)
	if err != nil {
		return "", false
	}
	return o.pager.Next(doc, pageURL, pageIndex, visitedPages)
}

// visitCard navigates to one detail page and builds its CardRecord. A
// failed visit is logged and skipped, never retried.
func (o *Orchestrator) visitCard(ctx context.Context, link models.CardLink) *models.CardRecord {
	o.surf.ClearResponses()

	if err := o.surf.Navigate(ctx, link.CanonicalURL); err != nil {
		o.logger.Warn("[harvest] card %s unreachable: %v", link.CanonicalURL, err)
		return nil
	}
	if !o.clearChallenge(ctx, 0) {
		return nil
	}

	var feed *ItemFields
	if o.cfg.ItemFeedPattern != "" {
		timeout := time.Duration(o.cfg.ResponseWaitSec) * time.Second
		if body, err := o.surf.WaitForResponse(ctx, o.cfg.ItemFeedPattern, timeout); err == nil {
			if decoded, err := DecodeItemFeed(body); err == nil {
				feed = decoded
			} else {
				o.logger.Debug("[harvest] item feed unusable for %s: %v", link.CanonicalURL, err)
			}
		}
	}

	reviewPage, err := o.reviews.Extract(ctx, o.surf, LoaderParamsFromConfig(o.cfg))
	if err != nil {
		o.logger.Warn("[harvest] review extraction failed for %s: %v", link.CanonicalURL, err)
		reviewPage = ReviewPage{PageCounter: -1}
	}

	var domFields CardFields
	if doc, err := browser.Document(ctx, o.surf); err == nil {
		domFields = o.fields.Extract(doc)
	} else {
		o.logger.Warn("[harvest] cannot read detail page %s: %v", link.CanonicalURL, err)
	}

	return buildCard(link, feed, domFields, reviewPage)
}

// buildCard merges authoritative feed fields over DOM-extracted ones and
// derives the review statistics. Extracted review cards are the source of
// truth for ReviewsCount; the page-level counter (or feed total) only wins
// when extraction undercounted.
func buildCard(link models.CardLink, feed *ItemFields, dom CardFields, page ReviewPage) *models.CardRecord {
	card := &models.CardRecord{
		Name:         dom.Name,
		Address:      dom.Address,
		CompanyID:    dom.CompanyID,
		Rating:       dom.Rating,
		Phone:        dom.Phone,
		Website:      dom.Website,
		Rubrics:      dom.Rubrics,
		OpeningHours: dom.OpeningHours,
		Reviews:      page.Reviews,
		SourceURL:    link.CanonicalURL,
		ScrapedAt:    time.Now(),
	}

	if feed != nil {
		if feed.Name != "" {
			card.Name = feed.Name
		}
		if feed.Address != "" {
			card.Address = feed.Address
		}
		if feed.Phone != "" {
			card.Phone = feed.Phone
		}
		if feed.Website != "" {
			card.Website = feed.Website
		}
		if feed.Rating > 0 {
			card.Rating = feed.Rating
		}
		if len(feed.Rubrics) > 0 {
			card.Rubrics = feed.Rubrics
		}
	}

	card.ReviewsCount = len(page.Reviews)
	if page.PageCounter > card.ReviewsCount {
		card.ReviewsCount = page.PageCounter
	}
	if feed != nil && feed.ReviewsCount > card.ReviewsCount {
		card.ReviewsCount = feed.ReviewsCount
	}

	card.PositiveReviews, card.NegativeReviews = ClassifyReviews(page.Reviews)
	card.AnsweredReviews, card.UnansweredReviews = CountResponses(page.Reviews)
	card.AvgResponseTimeDays = AvgResponseDays(page.Reviews)

	return card
}

// clearChallenge probes for an anti-bot challenge and, when present, waits
// the configured backoff and rechecks up to the depth bound. Returns false
// when the challenge never clears.
func (o *Orchestrator) clearChallenge(ctx context.Context, depth int) bool {
	doc, err := browser.Document(ctx, o.surf)
	if err != nil {
		// No signal; proceed and let later extraction degrade.
		return true
	}
	if !o.challengePresent(doc) {
		return true
	}
	if depth >= o.cfg.CaptchaMaxRechecks {
		o.logger.Error("[harvest] challenge did not clear after %d rechecks", depth)
		return false
	}

	o.logger.Warn("[harvest] challenge detected, waiting %ds (recheck %d/%d)",
		o.cfg.CaptchaWaitSec, depth+1, o.cfg.CaptchaMaxRechecks)
	if !utils.Sleep(ctx, time.Duration(o.cfg.CaptchaWaitSec)*time.Second) {
		return false
	}
	return o.clearChallenge(ctx, depth+1)
}

func (o *Orchestrator) challengePresent(doc *goquery.Document) bool {
	for _, sel := range o.sel.Captcha {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func (o *Orchestrator) noResultsPage(doc *goquery.Document) bool {
	for _, sel := range o.sel.NoResults {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// navigateListing loads a listing page with retry; listing pages are worth
// retrying where individual cards are not.
func (o *Orchestrator) navigateListing(ctx context.Context, pageURL string) error {
	return o.retry.Do(ctx, "load-listing-page", func() error {
		return o.surf.Navigate(ctx, pageURL)
	})
}

func (o *Orchestrator) installRequestCounter(ctx context.Context) {
	if err := o.surf.ExecuteScript(ctx, requestCounterScript, nil); err != nil {
		o.logger.Debug("[harvest] request counter injection failed: %v", err)
	}
}

// waitRequestsSettled polls the in-page XHR counter until it reaches zero or
// the wait budget runs out. Probe failure is treated as settled.
func (o *Orchestrator) waitRequestsSettled(ctx context.Context) {
	deadline := time.Now().Add(time.Duration(o.cfg.ResponseWaitSec) * time.Second)
	for time.Now().Before(deadline) {
		var open int
		if err := o.surf.ExecuteScript(ctx, openRequestsProbe, &open); err != nil || open == 0 {
			return
		}
		if !utils.Sleep(ctx, 200*time.Millisecond) {
			return
		}
	}
	o.logger.Warn("[harvest] in-flight requests did not settle, proceeding with available data")
}

// newLinksOrdered filters links already visited in this run and returns the
// remainder in stable canonical-URL order.
func (o *Orchestrator) newLinksOrdered(set map[string]models.CardLink) []models.CardLink {
	out := make([]models.CardLink, 0, len(set))
	for canonical, link := range set {
		if o.visited.Contains(canonical) {
			continue
		}
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CanonicalURL < out[j].CanonicalURL
	})
	return out
}
