package models

import "time"

// SearchQuery identifies one harvest run: what to search for, where, and how
// many detail records to collect at most. Created once at harvest start.
type SearchQuery struct {
	Text       string
	Location   string
	MaxRecords int
}

// CardLink is a deduplicated detail-page URL discovered on a listing page.
// Equality is by CanonicalURL (query string and fragment stripped).
type CardLink struct {
	CanonicalURL     string
	DiscoveredOnPage int
}

// ReviewRecord is a single customer review extracted from a detail page.
// A Rating of 0 means the rating could not be resolved.
type ReviewRecord struct {
	Rating       float64
	Text         string
	Author       string
	ReviewDate   *time.Time
	ResponseDate *time.Time
	HasResponse  bool
}

// CardRecord is the finished record for one business detail page. It is
// built once per visited CardLink and never mutated afterwards.
type CardRecord struct {
	Name              string
	Address           string
	CompanyID         string
	Rating            float64
	ReviewsCount      int
	PositiveReviews   int
	NegativeReviews   int
	AnsweredReviews   int
	UnansweredReviews int
	// AvgResponseTimeDays is nil when no review on the card has both a
	// review date and a later response date.
	AvgResponseTimeDays *float64
	Phone               string
	Website             string
	Rubrics             []string
	OpeningHours        []string
	Reviews             []ReviewRecord
	SourceURL           string
	ScrapedAt           time.Time
}

// AggregateSummary holds the running totals folded from completed cards.
// It is valid to read and export at any point of a run.
type AggregateSummary struct {
	TotalCards          int
	RatedCards          int
	RatingMean          float64
	ReviewsCount        int
	PositiveReviews     int
	NegativeReviews     int
	AnsweredReviews     int
	UnansweredReviews   int
	ResponseTimeMean    float64
	ResponseTimeSamples int
}

// Run status values carried on ParseResult.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// ParseResult is the outcome of one harvest run.
type ParseResult struct {
	RunID      string
	Query      SearchQuery
	Aggregated AggregateSummary
	Cards      []*CardRecord
	Status     string
}
