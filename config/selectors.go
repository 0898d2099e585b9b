package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Selectors externalizes every site-specific CSS selector and heuristic list
// used by the harvest engine. Order matters: each slice is a fallback chain
// tried first to last. Defaults target Yandex Maps / 2GIS style markup; a
// JSON file can override any field without recompilation.
type Selectors struct {
	// Listing pages.
	CardContainers     []string `json:"card_containers"`
	DetailPathMarkers  []string `json:"detail_path_markers"`
	DetailPathExcludes []string `json:"detail_path_excludes"`
	ScrollContainers   []string `json:"scroll_containers"`

	// Pagination.
	NextPageLabels       []string `json:"next_page_labels"`
	NextPageClassMarkers []string `json:"next_page_class_markers"`

	// Detail-page fields.
	Name         []string `json:"name"`
	Address      []string `json:"address"`
	Phone        []string `json:"phone"`
	Website      []string `json:"website"`
	Rubrics      []string `json:"rubrics"`
	CompanyID    []string `json:"company_id"`
	OpeningHours []string `json:"opening_hours"`
	PageRating   []string `json:"page_rating"`

	// Reviews.
	ReviewsTab     []string `json:"reviews_tab"`
	ReviewNodes    []string `json:"review_nodes"`
	ReviewCounter  []string `json:"review_counter"`
	ReviewAuthor   []string `json:"review_author"`
	ReviewText     []string `json:"review_text"`
	ReviewDate     []string `json:"review_date"`
	ReviewResponse []string `json:"review_response"`
	ResponseDate   []string `json:"response_date"`

	// Rating fallback chain, in resolution order.
	RatingValueAttrs   []string `json:"rating_value_attrs"`
	RatingClassMarkers []string `json:"rating_class_markers"`
	RatingText         []string `json:"rating_text"`
	StarGlyphs         []string `json:"star_glyphs"`

	// Text blocks matching any of these markers are rejected as boilerplate
	// when falling back to longest-text-block extraction.
	BoilerplateMarkers []string `json:"boilerplate_markers"`

	// Interrupt / terminal probes.
	Captcha   []string `json:"captcha"`
	NoResults []string `json:"no_results"`
}

// DefaultSelectors returns the built-in chains for Yandex Maps / 2GIS markup.
func DefaultSelectors() Selectors {
	return Selectors{
		CardContainers: []string{
			"div.search-business-snippet-view",
			"div.search-snippet-view",
			"div[data-id] article",
			"li.search-list-item",
		},
		DetailPathMarkers:  []string{"/firm/", "/station/", "/maps/org/"},
		DetailPathExcludes: []string{"/gallery", "/photos", "/reviews/add"},
		ScrollContainers: []string{
			"div.scroll__container",
			"div.search-list-view__content",
			"div[class*='scroll']",
		},

		NextPageLabels:       []string{"следующая страница", "следующая", "next page", "next"},
		NextPageClassMarkers: []string{"pagination__next", "next-page", "_next"},

		Name: []string{
			"h1.card-title-view__title",
			"h1.orgpage-header-view__header",
			"h1[itemprop='name']",
			"h1",
		},
		Address: []string{
			"div.business-contacts-view__address-link",
			"a.business-contacts-view__address-link",
			"[itemprop='address']",
		},
		Phone: []string{
			"div.card-phones-view__number",
			"span[itemprop='telephone']",
			"a[href^='tel:']",
		},
		Website: []string{
			"span.business-urls-view__text",
			"a.business-urls-view__link",
			"a[itemprop='url']",
		},
		Rubrics: []string{
			"a.breadcrumbs-view__breadcrumb",
			"span.business-categories-view__category",
			"a[class*='rubric']",
		},
		CompanyID:    []string{"div.business-card-view"},
		OpeningHours: []string{"meta[itemprop='openingHours']"},
		PageRating: []string{
			"span.business-rating-badge-view__rating-text",
			"div.business-summary-rating-badge-view__rating",
			"[itemprop='ratingValue']",
		},

		ReviewsTab: []string{
			"div.tabs-select-view__title._name_reviews",
			"a[href*='/reviews']",
		},
		ReviewNodes: []string{
			"div.business-review-view",
			"div[itemprop='review']",
			"div[class*='review-card']",
		},
		ReviewCounter: []string{
			"div.tabs-select-view__counter",
			"span.business-rating-amount-view",
		},
		ReviewAuthor: []string{
			"div.business-review-view__author-name span",
			"span[itemprop='name']",
			"div[class*='author']",
		},
		ReviewText: []string{
			"span.business-review-view__body-text",
			"div.business-review-view__body",
			"span[class*='review-text']",
		},
		ReviewDate: []string{
			"span.business-review-view__date span",
			"meta[itemprop='datePublished']",
			"span[class*='review-date']",
		},
		ReviewResponse: []string{
			"div.business-review-view__comment",
			"div.business-review-comment-content",
			"div[class*='official-comment']",
		},
		ResponseDate: []string{
			"span.business-review-comment-content__date",
			"div[class*='comment'] span[class*='date']",
		},

		RatingValueAttrs:   []string{"data-rating", "aria-valuenow", "content"},
		RatingClassMarkers: []string{"star", "rating", "stars"},
		RatingText: []string{
			"span.business-rating-badge-view__rating-text",
			"span[class*='rating-text']",
		},
		StarGlyphs: []string{
			"span.business-rating-badge-view__star._full",
			"span[class*='star']._full",
			"svg[class*='star'][fill]:not([fill='none'])",
		},

		BoilerplateMarkers: []string{
			"назад", "days ago", "день назад", "написать отзыв", "write a review",
			"показать ещё", "show more", "полезно", "helpful",
		},

		Captcha:   []string{"div.CheckboxCaptcha", "div.AdvancedCaptcha", "form#checkbox-captcha-form"},
		NoResults: []string{"div.nothing-found-view", "div[class*='nothing-found']"},
	}
}

// LoadSelectors merges a JSON overlay at path over the defaults. An empty
// path returns the defaults unchanged.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()
	if path == "" {
		return sel, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return sel, fmt.Errorf("selectors: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("selectors: parse %q: %w", path, err)
	}
	return sel, nil
}
