package harvest

import (
	"testing"

	"bizharvest/config"
	"bizharvest/utils"
)

func newTestPagination() *Pagination {
	return NewPagination(config.DefaultSelectors(), utils.NewLogger())
}

func TestNextPrefersExplicitLabel(t *testing.T) {
	p := newTestPagination()
	html := `
	<html><body>
		<a href="/search/cafe/page/9">9</a>
		<a href="/search/cafe/page/2" aria-label="Следующая страница">→</a>
	</body></html>`

	next, ok := p.Next(mustDoc(t, html), "https://example.com/search/cafe", 1, utils.NewURLSet())
	if !ok {
		t.Fatal("expected a next page")
	}
	if next != "https://example.com/search/cafe/page/2" {
		t.Errorf("next: got %s, want the labeled anchor", next)
	}
}

func TestNextByClassMarker(t *testing.T) {
	p := newTestPagination()
	html := `
	<html><body>
		<a class="pagination__next" href="/search/cafe/page/3">more</a>
	</body></html>`

	next, ok := p.Next(mustDoc(t, html), "https://example.com/search/cafe/page/2", 2, utils.NewURLSet())
	if !ok || next != "https://example.com/search/cafe/page/3" {
		t.Errorf("next: got (%s, %v), want class-marker anchor", next, ok)
	}
}

func TestNextByPageNumber(t *testing.T) {
	p := newTestPagination()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"link text",
			`<a href="/search/cafe/p2">2</a>`,
			"https://example.com/search/cafe/p2",
		},
		{
			"page path segment",
			`<a href="/search/cafe/page/2">continue</a>`,
			"https://example.com/search/cafe/page/2",
		},
		{
			"page query parameter",
			`<a href="/search/cafe?page=2">continue</a>`,
			"https://example.com/search/cafe?page=2",
		},
	}

	for _, tt := range tests {
		doc := mustDoc(t, "<html><body>"+tt.html+"</body></html>")
		next, ok := p.Next(doc, "https://example.com/search/cafe", 1, utils.NewURLSet())
		if !ok || next != tt.want {
			t.Errorf("%s: got (%s, %v), want %s", tt.name, next, ok, tt.want)
		}
	}
}

func TestNextCycleGuard(t *testing.T) {
	p := newTestPagination()
	html := `
	<html><body>
		<a href="/search/cafe/page/2" aria-label="Next page">next</a>
	</body></html>`

	visited := utils.NewURLSet()
	visited.Add("https://example.com/search/cafe/page/2")

	next, ok := p.Next(mustDoc(t, html), "https://example.com/search/cafe", 1, visited)
	if ok {
		t.Errorf("cycle guard failed: returned %s for an already-visited page", next)
	}
}

func TestNextTerminalWhenNothingMatches(t *testing.T) {
	p := newTestPagination()
	html := `
	<html><body>
		<a href="/firm/1">a business</a>
		<a href="/search/cafe/page/7">7</a>
	</body></html>`

	next, ok := p.Next(mustDoc(t, html), "https://example.com/search/cafe", 1, utils.NewURLSet())
	if ok {
		t.Errorf("expected terminal state, got %s", next)
	}
}
