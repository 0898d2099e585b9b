package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"bizharvest/config"
	"bizharvest/utils"
)

// capturedResponse is one network response seen by the page, kept until the
// body is fetched or the buffer is cleared.
type capturedResponse struct {
	url       string
	requestID network.RequestID
	status    int64
}

// ChromeSurface implements Surface on top of chromedp. One instance owns one
// browser tab; a harvest run owns exactly one instance.
type ChromeSurface struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc
	navTimeout  time.Duration
	logger      *utils.Logger

	mu        sync.Mutex
	responses []capturedResponse
}

// NewChromeSurface starts a headless Chrome instance and begins capturing
// network responses for WaitForResponse.
func NewChromeSurface(cfg *config.Config, logger *utils.Logger) (*ChromeSurface, error) {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	tabCtx, cancelCtx := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	s := &ChromeSurface{
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
		cancelCtx:   cancelCtx,
		navTimeout:  time.Duration(cfg.NavTimeoutSec) * time.Second,
		logger:      logger,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			s.mu.Lock()
			s.responses = append(s.responses, capturedResponse{
				url:       resp.Response.URL,
				requestID: resp.RequestID,
				status:    resp.Response.Status,
			})
			// Bounded buffer: detail pages fire hundreds of requests.
			if len(s.responses) > 512 {
				s.responses = s.responses[len(s.responses)-512:]
			}
			s.mu.Unlock()
		}
	})

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}

	return s, nil
}

// Navigate loads url, bounded by the configured navigation timeout and the
// caller's context.
func (s *ChromeSurface) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.boundedCtx(ctx, s.navTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// ExecuteScript evaluates js in the page context.
func (s *ChromeSurface) ExecuteScript(ctx context.Context, js string, out any) error {
	runCtx, cancel := s.boundedCtx(ctx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("browser: evaluate: %w", err)
	}
	return nil
}

// PageSource returns the rendered HTML of the current document.
func (s *ChromeSurface) PageSource(ctx context.Context) (string, error) {
	runCtx, cancel := s.boundedCtx(ctx, 30*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: page source: %w", err)
	}
	return html, nil
}

// Click dispatches a click on the first element matching selector.
func (s *ChromeSurface) Click(ctx context.Context, selector string) error {
	runCtx, cancel := s.boundedCtx(ctx, 15*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

// WaitForResponse polls the captured-response buffer for a URL matching
// pattern and returns its body. Responses already in the buffer match too,
// so click-then-wait races are tolerated.
func (s *ChromeSurface) WaitForResponse(ctx context.Context, urlPattern string, timeout time.Duration) (string, error) {
	re, err := regexp.Compile(urlPattern)
	if err != nil {
		return "", fmt.Errorf("browser: response pattern: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if match, ok := s.takeMatching(re); ok {
			return s.responseBody(ctx, match)
		}
		if time.Now().After(deadline) {
			return "", ErrResponseTimeout
		}
		if !utils.Sleep(ctx, 100*time.Millisecond) {
			return "", ctx.Err()
		}
	}
}

// ClearResponses drops the captured-response buffer.
func (s *ChromeSurface) ClearResponses() {
	s.mu.Lock()
	s.responses = s.responses[:0]
	s.mu.Unlock()
}

// Close tears down the tab and the browser process.
func (s *ChromeSurface) Close() {
	s.cancelCtx()
	s.cancelAlloc()
}

func (s *ChromeSurface) takeMatching(re *regexp.Regexp) (capturedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.responses) - 1; i >= 0; i-- {
		r := s.responses[i]
		if re.MatchString(r.url) && r.status < 400 {
			s.responses = append(s.responses[:i], s.responses[i+1:]...)
			return r, true
		}
	}
	return capturedResponse{}, false
}

func (s *ChromeSurface) responseBody(ctx context.Context, r capturedResponse) (string, error) {
	runCtx, cancel := s.boundedCtx(ctx, 10*time.Second)
	defer cancel()

	var body []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(actionCtx context.Context) error {
		b, err := network.GetResponseBody(r.requestID).Do(actionCtx)
		body = b
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("browser: response body for %s: %w", r.url, err)
	}
	return string(body), nil
}

// boundedCtx derives a chromedp run context limited by both the caller's
// context and a local timeout.
func (s *ChromeSurface) boundedCtx(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancelTimeout := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(caller, cancelTimeout)
	return runCtx, func() {
		stop()
		cancelTimeout()
	}
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
