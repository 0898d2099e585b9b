package harvest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/utils"
)

// fakeSurface serves canned HTML per URL. Scripts report a settled page and
// an unchanged scroll position so runs converge in one iteration.
type fakeSurface struct {
	pages    map[string]string
	current  string
	navCount map[string]int
	feedBody string
}

func newFakeSurface(pages map[string]string) *fakeSurface {
	return &fakeSurface{pages: pages, navCount: make(map[string]int)}
}

func (f *fakeSurface) Navigate(_ context.Context, url string) error {
	f.navCount[url]++
	if _, ok := f.pages[url]; !ok {
		return fmt.Errorf("no page at %s", url)
	}
	f.current = url
	return nil
}

func (f *fakeSurface) ExecuteScript(_ context.Context, _ string, out any) error {
	switch v := out.(type) {
	case *int:
		*v = 0
	case *ScrollOutcome:
		*v = ScrollOutcome{}
	}
	return nil
}

func (f *fakeSurface) PageSource(_ context.Context) (string, error) {
	html, ok := f.pages[f.current]
	if !ok {
		return "", fmt.Errorf("no current page")
	}
	return html, nil
}

func (f *fakeSurface) Click(_ context.Context, selector string) error {
	return fmt.Errorf("no element for %s", selector)
}

func (f *fakeSurface) WaitForResponse(_ context.Context, _ string, _ time.Duration) (string, error) {
	if f.feedBody == "" {
		return "", browser.ErrResponseTimeout
	}
	return f.feedBody, nil
}

func (f *fakeSurface) ClearResponses() {}
func (f *fakeSurface) Close()         {}

func orchestratorConfig() *config.Config {
	return &config.Config{
		MaxRecords:         100,
		MaxRetries:         1,
		ScrollStepPx:       100,
		ScrollWaitMs:       0,
		MaxScrollIters:     1,
		MaxScrollItersLong: 1,
		RequiredNoChange:   1,
		RelaxedNoChange:    1,
		MinCardsThreshold:  0,
		LargeReviewCount:   150,
		ResponseWaitSec:    0,
		CaptchaWaitSec:     0,
		CaptchaMaxRechecks: 1,
	}
}

func newTestOrchestrator(cfg *config.Config, surf browser.Surface) *Orchestrator {
	return NewOrchestrator(cfg, config.DefaultSelectors(), surf, utils.NewLoggerWithLevel("error"))
}

const testListingURL = "https://maps.example.com/search/cafe"

func detailPage(name string, rating string) string {
	return fmt.Sprintf(`<html><body>
		<h1>%s</h1>
		<span itemprop="ratingValue">%s</span>
	</body></html>`, name, rating)
}

func listingPage(firmIDs ...int) string {
	body := ""
	for _, id := range firmIDs {
		body += fmt.Sprintf(
			`<div class="search-business-snippet-view"><a href="/firm/%d">Card %d</a></div>`, id, id)
	}
	return "<html><body>" + body + "</body></html>"
}

func firmURL(id int) string {
	return fmt.Sprintf("https://maps.example.com/firm/%d", id)
}

func TestRunHarvestsSinglePage(t *testing.T) {
	pages := map[string]string{testListingURL: listingPage(101, 102, 103)}
	for _, id := range []int{101, 102, 103} {
		pages[firmURL(id)] = detailPage(fmt.Sprintf("Cafe %d", id), "5.0")
	}
	surf := newFakeSurface(pages)
	o := newTestOrchestrator(orchestratorConfig(), surf)

	result := o.Run(context.Background(), models.SearchQuery{Text: "cafe"}, testListingURL)

	if result.Status != models.StatusComplete {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusComplete)
	}
	if result.Aggregated.TotalCards != 3 {
		t.Errorf("TotalCards: got %d, want 3", result.Aggregated.TotalCards)
	}
	if result.Aggregated.RatingMean != 5.0 {
		t.Errorf("RatingMean: got %v, want 5.0", result.Aggregated.RatingMean)
	}
	if result.Aggregated.ReviewsCount != 0 {
		t.Errorf("ReviewsCount: got %d, want 0", result.Aggregated.ReviewsCount)
	}
	if len(result.Cards) != 3 {
		t.Fatalf("Cards: got %d, want 3", len(result.Cards))
	}
	for i, want := range []string{firmURL(101), firmURL(102), firmURL(103)} {
		if result.Cards[i].SourceURL != want {
			t.Errorf("Cards[%d].SourceURL: got %s, want %s", i, result.Cards[i].SourceURL, want)
		}
	}
	if result.Cards[0].Name != "Cafe 101" {
		t.Errorf("Cards[0].Name: got %q, want %q", result.Cards[0].Name, "Cafe 101")
	}
}

func TestRunStopsAtRecordBudget(t *testing.T) {
	pages := map[string]string{testListingURL: listingPage(101, 102, 103, 104, 105)}
	for _, id := range []int{101, 102, 103, 104, 105} {
		pages[firmURL(id)] = detailPage(fmt.Sprintf("Cafe %d", id), "4.0")
	}
	surf := newFakeSurface(pages)
	o := newTestOrchestrator(orchestratorConfig(), surf)

	query := models.SearchQuery{Text: "cafe", MaxRecords: 2}
	result := o.Run(context.Background(), query, testListingURL)

	if got := result.Aggregated.TotalCards; got != 2 {
		t.Errorf("TotalCards: got %d, want 2", got)
	}
	if len(result.Cards) != 2 {
		t.Errorf("Cards: got %d, want 2", len(result.Cards))
	}
	if result.Status != models.StatusComplete {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusComplete)
	}
	// Budget exhaustion ends the run before pagination returns to the
	// listing, so the listing is loaded exactly once.
	if got := surf.navCount[testListingURL]; got != 1 {
		t.Errorf("listing navigations: got %d, want 1", got)
	}
	if got := surf.navCount[firmURL(103)]; got != 0 {
		t.Errorf("card beyond budget was visited %d times", got)
	}
}

func TestRunFollowsPagination(t *testing.T) {
	page2URL := testListingURL + "?page=2"
	page1 := listingPage(101, 102) +
		`<a aria-label="Следующая страница" href="/search/cafe?page=2">2</a>`
	pages := map[string]string{
		testListingURL: page1,
		page2URL:       listingPage(201),
	}
	for _, id := range []int{101, 102, 201} {
		pages[firmURL(id)] = detailPage(fmt.Sprintf("Cafe %d", id), "3.0")
	}
	surf := newFakeSurface(pages)
	o := newTestOrchestrator(orchestratorConfig(), surf)

	result := o.Run(context.Background(), models.SearchQuery{Text: "cafe"}, testListingURL)

	if result.Aggregated.TotalCards != 3 {
		t.Errorf("TotalCards: got %d, want 3", result.Aggregated.TotalCards)
	}
	if surf.navCount[page2URL] == 0 {
		t.Error("second listing page was never loaded")
	}
	if result.Cards[len(result.Cards)-1].SourceURL != firmURL(201) {
		t.Errorf("last card: got %s, want %s", result.Cards[len(result.Cards)-1].SourceURL, firmURL(201))
	}
	if result.Status != models.StatusComplete {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusComplete)
	}
}

func TestRunNoResultsTerminal(t *testing.T) {
	pages := map[string]string{
		testListingURL: `<html><body><div class="nothing-found-view">Ничего не найдено</div></body></html>`,
	}
	surf := newFakeSurface(pages)
	o := newTestOrchestrator(orchestratorConfig(), surf)

	result := o.Run(context.Background(), models.SearchQuery{Text: "no such place"}, testListingURL)

	if result.Status != models.StatusComplete {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusComplete)
	}
	if result.Aggregated.TotalCards != 0 {
		t.Errorf("TotalCards: got %d, want 0", result.Aggregated.TotalCards)
	}
	if len(result.Cards) != 0 {
		t.Errorf("Cards: got %d, want 0", len(result.Cards))
	}
}

func TestRunUnreachableFirstPageIsPartial(t *testing.T) {
	surf := newFakeSurface(map[string]string{})
	o := newTestOrchestrator(orchestratorConfig(), surf)

	result := o.Run(context.Background(), models.SearchQuery{Text: "cafe"}, testListingURL)

	if result.Status != models.StatusPartial {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusPartial)
	}
	if result.Aggregated.TotalCards != 0 {
		t.Errorf("TotalCards: got %d, want 0", result.Aggregated.TotalCards)
	}
}

func TestRunCancelledContextIsPartial(t *testing.T) {
	pages := map[string]string{testListingURL: listingPage(101)}
	pages[firmURL(101)] = detailPage("Cafe 101", "5.0")
	surf := newFakeSurface(pages)
	o := newTestOrchestrator(orchestratorConfig(), surf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := o.Run(ctx, models.SearchQuery{Text: "cafe"}, testListingURL)

	if result.Status != models.StatusPartial {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusPartial)
	}
	if len(result.Cards) != 0 {
		t.Errorf("Cards: got %d, want 0", len(result.Cards))
	}
}

func TestRunSkipsUnreachableCard(t *testing.T) {
	pages := map[string]string{testListingURL: listingPage(101, 102)}
	pages[firmURL(102)] = detailPage("Cafe 102", "4.0")
	// firm 101 is a dead link; the run continues with the rest.
	surf := newFakeSurface(pages)
	o := newTestOrchestrator(orchestratorConfig(), surf)

	result := o.Run(context.Background(), models.SearchQuery{Text: "cafe"}, testListingURL)

	if result.Status != models.StatusComplete {
		t.Errorf("Status: got %s, want %s", result.Status, models.StatusComplete)
	}
	if result.Aggregated.TotalCards != 1 {
		t.Fatalf("TotalCards: got %d, want 1", result.Aggregated.TotalCards)
	}
	if result.Cards[0].SourceURL != firmURL(102) {
		t.Errorf("surviving card: got %s, want %s", result.Cards[0].SourceURL, firmURL(102))
	}
}

func TestRunItemFeedOverridesDomFields(t *testing.T) {
	pages := map[string]string{
		testListingURL: listingPage(101),
		firmURL(101):   detailPage("DOM Name", "3.0"),
	}
	surf := newFakeSurface(pages)
	surf.feedBody = `{
		"result": {
			"items": [{
				"name": "Бар Фасоль",
				"address_name": "ул. Ленина, 1",
				"rubrics": [{"name": "Бар"}],
				"contact_groups": [{
					"contacts": [
						{"type": "phone", "value": "+7 900 000-00-00"},
						{"type": "website", "value": "fasol.example", "url": "https://fasol.example"}
					]
				}],
				"reviews": {"general_rating": 4.6, "general_review_count": 120}
			}]
		}
	}`

	cfg := orchestratorConfig()
	cfg.ItemFeedPattern = `items/byid`
	o := newTestOrchestrator(cfg, surf)

	result := o.Run(context.Background(), models.SearchQuery{Text: "бар"}, testListingURL)

	if len(result.Cards) != 1 {
		t.Fatalf("Cards: got %d, want 1", len(result.Cards))
	}
	card := result.Cards[0]
	if card.Name != "Бар Фасоль" {
		t.Errorf("Name: got %q, want feed name", card.Name)
	}
	if card.Address != "ул. Ленина, 1" {
		t.Errorf("Address: got %q", card.Address)
	}
	if card.Rating != 4.6 {
		t.Errorf("Rating: got %v, want 4.6", card.Rating)
	}
	if card.ReviewsCount != 120 {
		t.Errorf("ReviewsCount: got %d, want 120 (feed total exceeds extracted)", card.ReviewsCount)
	}
	if card.Phone != "+7 900 000-00-00" {
		t.Errorf("Phone: got %q", card.Phone)
	}
	if card.Website != "https://fasol.example" {
		t.Errorf("Website: got %q", card.Website)
	}
}
