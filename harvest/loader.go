// Package harvest implements the page-convergence harvesting engine: scroll
// convergence, card-link collection, pagination discovery, review extraction
// and the orchestrating state machine.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/utils"
)

// ScrollOutcome reports whether one scroll step moved anything.
type ScrollOutcome struct {
	HeightChanged   bool `json:"heightChanged"`
	PositionChanged bool `json:"positionChanged"`
}

// MeasureFunc returns the current count of elements matching the card
// selector set in the live DOM.
type MeasureFunc func() (int, error)

// ScrollFunc advances the scroll target by one step and reports whether its
// height or position changed.
type ScrollFunc func() (ScrollOutcome, error)

// LoaderParams tunes one convergence run.
type LoaderParams struct {
	MaxIterations int
	ScrollWait    time.Duration
	// RequiredNoChange stops the loop once neither height, position nor
	// count changed for this many consecutive iterations. While fewer than
	// MinCards elements have been seen, RelaxedNoChange applies instead, to
	// tolerate slow asynchronous loading before giving up.
	RequiredNoChange int
	RelaxedNoChange  int
	MinCards         int
	StepPixels       int
}

// LoaderParamsFromConfig builds the standard listing-page parameters.
func LoaderParamsFromConfig(cfg *config.Config) LoaderParams {
	return LoaderParams{
		MaxIterations:    cfg.MaxScrollIters,
		ScrollWait:       time.Duration(cfg.ScrollWaitMs) * time.Millisecond,
		RequiredNoChange: cfg.RequiredNoChange,
		RelaxedNoChange:  cfg.RelaxedNoChange,
		MinCards:         cfg.MinCardsThreshold,
		StepPixels:       cfg.ScrollStepPx,
	}
}

// Loader drives a scrollable results pane until the set of lazily loaded
// entries stops growing.
type Loader struct {
	logger *utils.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *utils.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load repeatedly scrolls and re-measures until the measured count and
// scroll geometry plateau, or the iteration budget runs out. It returns the
// highest count observed and the number of iterations used. Termination is
// always guaranteed by MaxIterations regardless of convergence.
func (l *Loader) Load(ctx context.Context, measure MeasureFunc, scroll ScrollFunc, p LoaderParams) (int, int) {
	maxSeen := 0
	if n, err := measure(); err == nil {
		maxSeen = n
	}
	prevCount := maxSeen

	noChangeStreak := 0
	iterations := 0

	for i := 1; i <= p.MaxIterations; i++ {
		iterations = i

		outcome, err := scroll()
		if err != nil {
			// A single failed scroll step is no signal, not an abort.
			l.logger.Debug("[loader] scroll step %d failed: %v", i, err)
			outcome = ScrollOutcome{}
		}

		if !utils.Sleep(ctx, p.ScrollWait) {
			break
		}

		count := prevCount
		if n, err := measure(); err == nil {
			count = n
		} else {
			l.logger.Debug("[loader] measure at step %d failed: %v", i, err)
		}
		if count > maxSeen {
			maxSeen = count
		}

		if !outcome.HeightChanged && !outcome.PositionChanged && count == prevCount {
			noChangeStreak++
		} else {
			noChangeStreak = 0
		}
		prevCount = count

		required := p.RequiredNoChange
		if maxSeen < p.MinCards {
			required = p.RelaxedNoChange
		}
		if noChangeStreak >= required {
			break
		}
	}

	l.logger.Debug("[loader] converged at %d elements after %d iterations", maxSeen, iterations)
	return maxSeen, iterations
}

// SurfaceMeasure builds a MeasureFunc counting live DOM elements matching
// any of the card selectors. Distinct elements matching several selectors
// are counted once.
func (l *Loader) SurfaceMeasure(ctx context.Context, surf browser.Surface, cardSelectors []string) MeasureFunc {
	js := fmt.Sprintf(`
		(function() {
			var selectors = %s;
			var seen = new Set();
			for (var i = 0; i < selectors.length; i++) {
				var found;
				try { found = document.querySelectorAll(selectors[i]); } catch (e) { continue; }
				for (var j = 0; j < found.length; j++) seen.add(found[j]);
			}
			return seen.size;
		})()`, mustJSON(cardSelectors))

	return func() (int, error) {
		var count int
		if err := surf.ExecuteScript(ctx, js, &count); err != nil {
			return 0, err
		}
		return count, nil
	}
}

// SurfaceScroll builds a ScrollFunc that advances a scrollable container by
// step pixels. Container discovery probes the configured candidates first,
// then any element taller than its viewport whose subtree contains a card
// element, and finally falls back to scrolling the window itself.
func (l *Loader) SurfaceScroll(ctx context.Context, surf browser.Surface, containerSelectors, cardSelectors []string, step int) ScrollFunc {
	js := fmt.Sprintf(`
		(function() {
			var containers = %s;
			var cards = %s;
			var step = %d;

			function containsCard(el) {
				for (var i = 0; i < cards.length; i++) {
					try { if (el.querySelector(cards[i])) return true; } catch (e) {}
				}
				return false;
			}

			function findContainer() {
				for (var i = 0; i < containers.length; i++) {
					var el;
					try { el = document.querySelector(containers[i]); } catch (e) { continue; }
					if (el && el.scrollHeight > el.clientHeight) return el;
				}
				var all = document.querySelectorAll('div, main, section, ul');
				for (var j = 0; j < all.length; j++) {
					var cand = all[j];
					if (cand.scrollHeight > cand.clientHeight + 16 && containsCard(cand)) return cand;
				}
				return null;
			}

			var state = window.__harvestScroll || (window.__harvestScroll = { h: -1, p: -1 });
			var el = findContainer();
			var height, pos;
			if (el) {
				el.scrollTop = el.scrollTop + step;
				height = el.scrollHeight;
				pos = el.scrollTop;
			} else {
				window.scrollBy(0, step);
				height = document.body ? document.body.scrollHeight : 0;
				pos = window.pageYOffset;
			}
			var out = { heightChanged: height !== state.h, positionChanged: pos !== state.p };
			state.h = height;
			state.p = pos;
			return out;
		})()`, mustJSON(containerSelectors), mustJSON(cardSelectors), step)

	return func() (ScrollOutcome, error) {
		var outcome ScrollOutcome
		if err := surf.ExecuteScript(ctx, js, &outcome); err != nil {
			return ScrollOutcome{}, err
		}
		return outcome, nil
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
