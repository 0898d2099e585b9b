package services

import "bizharvest/models"

// Aggregator folds completed card records into a running summary. It is
// pure and single-threaded: Fold is called once per card, in harvest order,
// and the summary is valid to read or export at any point of a run.
type Aggregator struct {
	summary       models.AggregateSummary
	ratingTotal   float64
	responseTotal float64
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Fold incorporates one completed card. Cards without a parseable rating do
// not move the rating mean. A card's average response time enters the
// response-time mean as a single sample regardless of how many reviews
// produced it, so large-review-count cards do not dominate the metric.
func (a *Aggregator) Fold(card *models.CardRecord) {
	a.summary.TotalCards++

	if card.Rating > 0 {
		a.ratingTotal += card.Rating
		a.summary.RatedCards++
		a.summary.RatingMean = a.ratingTotal / float64(a.summary.RatedCards)
	}

	a.summary.ReviewsCount += card.ReviewsCount
	a.summary.PositiveReviews += card.PositiveReviews
	a.summary.NegativeReviews += card.NegativeReviews
	a.summary.AnsweredReviews += card.AnsweredReviews
	a.summary.UnansweredReviews += card.UnansweredReviews

	if card.AvgResponseTimeDays != nil {
		a.responseTotal += *card.AvgResponseTimeDays
		a.summary.ResponseTimeSamples++
		a.summary.ResponseTimeMean = a.responseTotal / float64(a.summary.ResponseTimeSamples)
	}
}

// Summary returns the current running totals.
func (a *Aggregator) Summary() models.AggregateSummary {
	return a.summary
}

// MergeSummaries recombines summaries from independent runs into one, re-
// weighting the means by their sample counts.
func MergeSummaries(parts ...models.AggregateSummary) models.AggregateSummary {
	var merged models.AggregateSummary
	var ratingTotal, responseTotal float64

	for _, p := range parts {
		merged.TotalCards += p.TotalCards
		merged.RatedCards += p.RatedCards
		merged.ReviewsCount += p.ReviewsCount
		merged.PositiveReviews += p.PositiveReviews
		merged.NegativeReviews += p.NegativeReviews
		merged.AnsweredReviews += p.AnsweredReviews
		merged.UnansweredReviews += p.UnansweredReviews
		merged.ResponseTimeSamples += p.ResponseTimeSamples

		ratingTotal += p.RatingMean * float64(p.RatedCards)
		responseTotal += p.ResponseTimeMean * float64(p.ResponseTimeSamples)
	}

	if merged.RatedCards > 0 {
		merged.RatingMean = ratingTotal / float64(merged.RatedCards)
	}
	if merged.ResponseTimeSamples > 0 {
		merged.ResponseTimeMean = responseTotal / float64(merged.ResponseTimeSamples)
	}
	return merged
}
