// Package browser exposes the capability surface the harvest engine needs
// from a browser-automation backend. The engine never branches on the
// concrete backend; everything goes through the Surface interface.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrResponseTimeout is returned by WaitForResponse when no captured network
// response matched the pattern within the timeout.
var ErrResponseTimeout = errors.New("browser: no matching response before timeout")

// Surface is the capability interface over one browser instance. All calls
// against one Surface are sequential within a harvest run; implementations
// are not required to be safe for concurrent use.
type Surface interface {
	// Navigate loads url and waits for the main document.
	Navigate(ctx context.Context, url string) error
	// ExecuteScript evaluates js in the page and unmarshals the result into
	// out when out is non-nil.
	ExecuteScript(ctx context.Context, js string, out any) error
	// PageSource returns the current rendered HTML.
	PageSource(ctx context.Context) (string, error)
	// Click dispatches a click on the first element matching selector.
	Click(ctx context.Context, selector string) error
	// WaitForResponse returns the body of a captured network response whose
	// URL matches the regexp pattern, waiting up to timeout for one to
	// arrive. Responses received shortly before the call are also matched.
	WaitForResponse(ctx context.Context, urlPattern string, timeout time.Duration) (string, error)
	// ClearResponses drops previously captured responses, so a following
	// WaitForResponse only sees traffic caused by newer actions.
	ClearResponses()
	// Close releases the underlying browser resources.
	Close()
}

// Document fetches the current page source and parses it into a
// tree-queryable document. Built fresh on every call: the rendered DOM is
// re-read rather than cached across scroll steps.
func Document(ctx context.Context, s Surface) (*goquery.Document, error) {
	html, err := s.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
